package diff

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fuelType string

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  any
	}{
		{name: "nil", input: nil, want: nil},
		{name: "trimmed string", input: "  Civic ", want: "Civic"},
		{name: "blank string", input: "   ", want: nil},
		{name: "n/a", input: "N/A", want: nil},
		{name: "na lower", input: " na ", want: nil},
		{name: "int", input: 80000, want: float64(80000)},
		{name: "int64", input: int64(3), want: float64(3)},
		{name: "json number", input: json.Number("12.5"), want: 12.5},
		{name: "decimal", input: decimal.RequireFromString("12000.00"), want: float64(12000)},
		{name: "bool", input: true, want: true},
		{name: "named string", input: fuelType(" diesel "), want: "diesel"},
		{name: "blank named string", input: fuelType(" "), want: nil},
		{name: "string slice", input: []string{" abs ", "n/a"}, want: []any{"abs", nil}},
		{name: "map", input: map[string]any{"color": " Red ", "doors": 4}, want: map[string]any{"color": "Red", "doors": float64(4)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Normalize(%#v) = %#v, want %#v", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []any{
		nil,
		"  x  ",
		"n/a",
		"NA",
		42,
		3.5,
		json.Number("not-a-number"),
		[]any{" a ", []any{" b ", "na"}, map[string]any{"k": "  "}},
		map[string]any{"nested": map[string]any{"list": []string{" y "}}},
		[]string(nil),
		false,
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("Normalize not idempotent for %#v: once=%#v twice=%#v", input, once, twice)
		}
	}
}

func TestHasActualChanges(t *testing.T) {
	cases := []struct {
		name     string
		original any
		updated  any
		changed  bool
	}{
		{name: "padded numeric string vs number", original: "  50000 ", updated: 50000, changed: false},
		{name: "numeric string vs number", original: "50000", updated: 50000, changed: false},
		{name: "number vs numeric string", original: 12000, updated: "12000", changed: false},
		{name: "n/a vs nil", original: "N/A", updated: nil, changed: false},
		{name: "blank vs nil", original: "  ", updated: nil, changed: false},
		{name: "case differs", original: "Red", updated: "red", changed: true},
		{name: "same string", original: "Civic", updated: " Civic", changed: false},
		{name: "nil vs value", original: nil, updated: "Civic", changed: true},
		{name: "value vs nil", original: 80000, updated: nil, changed: true},
		{name: "numbers differ", original: 80000, updated: 75000, changed: true},
		{name: "unparseable string vs number", original: "lots", updated: 5, changed: true},
		{name: "decimal vs string", original: decimal.RequireFromString("19999.99"), updated: "19999.99", changed: false},
		{name: "equal lists", original: []string{"abs", "gps"}, updated: []any{"abs", " gps "}, changed: false},
		{name: "list length differs", original: []string{"abs"}, updated: []string{"abs", "gps"}, changed: true},
		{name: "list order differs", original: []string{"abs", "gps"}, updated: []string{"gps", "abs"}, changed: true},
		{name: "equal maps", original: map[string]any{"a": 1}, updated: map[string]any{"a": "1"}, changed: false},
		{name: "map keys differ", original: map[string]any{"a": 1}, updated: map[string]any{"b": 1}, changed: true},
		{name: "named string vs string", original: fuelType("diesel"), updated: " diesel", changed: false},
		{name: "named strings differ", original: fuelType("diesel"), updated: fuelType("petrol"), changed: true},
		{name: "bools equal", original: true, updated: true, changed: false},
		{name: "bools differ", original: true, updated: false, changed: true},
		{name: "bool vs string", original: true, updated: "true", changed: true},
		{name: "times equal", original: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), updated: time.Date(2026, 1, 1, 1, 0, 0, 0, time.FixedZone("x", 3600)), changed: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasActualChanges(tc.original, tc.updated); got != tc.changed {
				t.Fatalf("HasActualChanges(%#v, %#v) = %v, want %v", tc.original, tc.updated, got, tc.changed)
			}
			if got := ValuesAreEqual(tc.original, tc.updated); got == tc.changed {
				t.Fatalf("ValuesAreEqual(%#v, %#v) = %v, want %v", tc.original, tc.updated, got, !tc.changed)
			}
		})
	}
}

func TestChangesKeepsOnlyDifferingKeys(t *testing.T) {
	original := map[string]any{"make": "Honda", "model": "Accord", "mileage": 80000}
	proposed := map[string]any{"make": "Honda", "model": "Civic", "mileage": "80000"}

	changes := Changes(original, proposed)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %#v", len(changes), changes)
	}
	if changes[0].Name != "model" || changes[0].Old != "Accord" || changes[0].New != "Civic" {
		t.Fatalf("unexpected change: %#v", changes[0])
	}
}
