package app

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"carmarket/api/internal/diff"
	"carmarket/api/internal/listing"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

// editableField binds one seller-editable wire key to its stored value and to
// the typed slot it is staged into.
type editableField struct {
	required bool
	current  func(store.Listing, store.CarDetail) any
	// parse returns nil when the proposed value clears the field.
	parse func(raw any) (any, error)
	stage func(cs *listing.ChangeSet, value any)
}

func makeField[T any](
	required bool,
	current func(store.Listing, store.CarDetail) any,
	parse func(raw any) (T, error),
	slot func(cs *listing.ChangeSet) *listing.Opt[T],
) editableField {
	return editableField{
		required: required,
		current:  current,
		parse: func(raw any) (any, error) {
			if diff.Normalize(raw) == nil {
				return nil, nil
			}
			value, err := parse(raw)
			if err != nil {
				return nil, err
			}
			return value, nil
		},
		stage: func(cs *listing.ChangeSet, value any) {
			if value == nil {
				*slot(cs) = listing.Null[T]()
				return
			}
			*slot(cs) = listing.Some(value.(T))
		},
	}
}

var listingFields = map[string]editableField{
	"title": makeField(true,
		func(l store.Listing, _ store.CarDetail) any { return l.Title },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.Title }),
	"description": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.Description },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.Description }),
	"price": makeField(true,
		func(l store.Listing, _ store.CarDetail) any { return l.Price },
		parsePrice,
		func(cs *listing.ChangeSet) *listing.Opt[decimal.Decimal] { return &cs.Listing.Price }),
	"priceType": makeField(true,
		func(l store.Listing, _ store.CarDetail) any { return l.PriceType },
		parseEnum(listing.PriceType.Valid),
		func(cs *listing.ChangeSet) *listing.Opt[listing.PriceType] { return &cs.Listing.PriceType }),
	"location": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.Location },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.Location }),
	"city": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.City },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.City }),
	"state": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.State },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.State }),
	"country": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.Country },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.Country }),
	"postalCode": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return l.PostalCode },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.Listing.PostalCode }),
	"latitude": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return derefFloat(l.Latitude) },
		parseCoordinate(90),
		func(cs *listing.ChangeSet) *listing.Opt[float64] { return &cs.Listing.Latitude }),
	"longitude": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return derefFloat(l.Longitude) },
		parseCoordinate(180),
		func(cs *listing.ChangeSet) *listing.Opt[float64] { return &cs.Listing.Longitude }),
	"isUrgent": makeField(true,
		func(l store.Listing, _ store.CarDetail) any { return l.IsUrgent },
		parseBool,
		func(cs *listing.ChangeSet) *listing.Opt[bool] { return &cs.Listing.IsUrgent }),
	"expiresAt": makeField(false,
		func(l store.Listing, _ store.CarDetail) any { return derefTime(l.ExpiresAt) },
		parseTime,
		func(cs *listing.ChangeSet) *listing.Opt[time.Time] { return &cs.Listing.ExpiresAt }),
}

var carDetailFields = map[string]editableField{
	"make": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Make },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.Make }),
	"model": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Model },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.Model }),
	"year": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Year },
		parseYear,
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.Year }),
	"bodyType": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.BodyType },
		parseEnum(listing.BodyType.Valid),
		func(cs *listing.ChangeSet) *listing.Opt[listing.BodyType] { return &cs.CarDetail.BodyType }),
	"fuelType": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.FuelType },
		parseEnum(listing.FuelType.Valid),
		func(cs *listing.ChangeSet) *listing.Opt[listing.FuelType] { return &cs.CarDetail.FuelType }),
	"transmission": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Transmission },
		parseEnum(listing.Transmission.Valid),
		func(cs *listing.ChangeSet) *listing.Opt[listing.Transmission] { return &cs.CarDetail.Transmission }),
	"engineSize": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return c.EngineSize },
		parseEngineSize,
		func(cs *listing.ChangeSet) *listing.Opt[decimal.Decimal] { return &cs.CarDetail.EngineSize }),
	"enginePower": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return derefInt(c.EnginePower) },
		parseIntRange(1, 5000),
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.EnginePower }),
	"mileage": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Mileage },
		parseIntRange(0, math.MaxInt32),
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.Mileage }),
	"color": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return c.Color },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.Color }),
	"numberOfDoors": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.NumberOfDoors },
		parseIntRange(1, 10),
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.NumberOfDoors }),
	"numberOfSeats": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.NumberOfSeats },
		parseIntRange(1, 60),
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.NumberOfSeats }),
	"condition": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.Condition },
		parseEnum(listing.Condition.Valid),
		func(cs *listing.ChangeSet) *listing.Opt[listing.Condition] { return &cs.CarDetail.Condition }),
	"vin": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return c.VIN },
		parseUpperString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.VIN }),
	"registrationNumber": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return c.RegistrationNumber },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.RegistrationNumber }),
	"previousOwners": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return derefInt(c.PreviousOwners) },
		parseIntRange(0, 100),
		func(cs *listing.ChangeSet) *listing.Opt[int] { return &cs.CarDetail.PreviousOwners }),
	"hasAccidentHistory": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.HasAccidentHistory },
		parseBool,
		func(cs *listing.ChangeSet) *listing.Opt[bool] { return &cs.CarDetail.HasAccidentHistory }),
	"hasServiceHistory": makeField(true,
		func(_ store.Listing, c store.CarDetail) any { return c.HasServiceHistory },
		parseBool,
		func(cs *listing.ChangeSet) *listing.Opt[bool] { return &cs.CarDetail.HasServiceHistory }),
	"description": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return c.Description },
		parseString,
		func(cs *listing.ChangeSet) *listing.Opt[string] { return &cs.CarDetail.Description }),
	"features": makeField(false,
		func(_ store.Listing, c store.CarDetail) any { return nonNilStrings(c.Features) },
		parseFeatures,
		func(cs *listing.ChangeSet) *listing.Opt[[]string] { return &cs.CarDetail.Features }),
}

// stageFields diffs the proposed values against the stored row and stages
// the keys that really changed. The snapshot receives the pre-edit values of
// exactly those keys.
func stageFields(
	registry map[string]editableField,
	group string,
	proposed map[string]any,
	item store.Listing,
	car store.CarDetail,
	cs *listing.ChangeSet,
	snapshot map[string]any,
) error {
	var invalid []string
	for _, key := range sortedKeys(proposed) {
		field, ok := registry[key]
		if !ok {
			invalid = append(invalid, group+"."+key+": not editable")
			continue
		}
		value, err := field.parse(proposed[key])
		if err != nil {
			invalid = append(invalid, group+"."+key+": "+err.Error())
			continue
		}
		if value == nil && field.required {
			invalid = append(invalid, group+"."+key+": is required")
			continue
		}
		original := field.current(item, car)
		if !diff.HasActualChanges(original, value) {
			continue
		}
		field.stage(cs, value)
		snapshot[key] = original
	}
	if len(invalid) > 0 {
		return validationError("Invalid listing update", map[string]any{"fields": invalid})
	}
	return nil
}

func parseString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	}
	return "", fmt.Errorf("must be a string")
}

func parseUpperString(raw any) (string, error) {
	value, err := parseString(raw)
	return strings.ToUpper(value), err
}

func parseNumber(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("must be a number")
		}
		return parsed, nil
	case decimal.Decimal:
		return v, nil
	}
	return decimal.Decimal{}, fmt.Errorf("must be a number")
}

func parsePrice(raw any) (decimal.Decimal, error) {
	price, err := parseNumber(raw)
	if err != nil {
		return price, err
	}
	if price.IsNegative() {
		return price, fmt.Errorf("must not be negative")
	}
	return price.Round(2), nil
}

func parseEngineSize(raw any) (decimal.Decimal, error) {
	size, err := parseNumber(raw)
	if err != nil {
		return size, err
	}
	if !size.IsPositive() || size.GreaterThan(decimal.NewFromInt(20)) {
		return size, fmt.Errorf("must be between 0 and 20 litres")
	}
	return size.Round(1), nil
}

func parseWholeNumber(raw any) (int, error) {
	number, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	if !number.Equal(number.Truncate(0)) {
		return 0, fmt.Errorf("must be a whole number")
	}
	return int(number.IntPart()), nil
}

func parseIntRange(lo, hi int) func(any) (int, error) {
	return func(raw any) (int, error) {
		value, err := parseWholeNumber(raw)
		if err != nil {
			return 0, err
		}
		if value < lo || value > hi {
			return 0, fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return value, nil
	}
}

func parseYear(raw any) (int, error) {
	return parseIntRange(1900, time.Now().Year()+1)(raw)
}

func parseCoordinate(limit float64) func(any) (float64, error) {
	return func(raw any) (float64, error) {
		number, err := parseNumber(raw)
		if err != nil {
			return 0, err
		}
		value := number.InexactFloat64()
		if value < -limit || value > limit {
			return 0, fmt.Errorf("must be between %v and %v", -limit, limit)
		}
		return value, nil
	}
}

func parseBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("must be true or false")
		}
		return parsed, nil
	}
	return false, fmt.Errorf("must be true or false")
}

func parseTime(raw any) (time.Time, error) {
	value, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("must be an RFC 3339 timestamp")
	}
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.DateOnly, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be an RFC 3339 timestamp")
}

func parseEnum[T ~string](valid func(T) bool) func(any) (T, error) {
	return func(raw any) (T, error) {
		text, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("must be a string")
		}
		value := T(strings.ToLower(strings.TrimSpace(text)))
		if !valid(value) {
			return "", fmt.Errorf("unknown value %q", text)
		}
		return value, nil
	}
}

func parseFeatures(raw any) ([]string, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("must be a list of strings")
	}
	features := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("must be a list of strings")
		}
		if text = strings.TrimSpace(text); text != "" {
			features = append(features, text)
		}
	}
	return features, nil
}

func derefFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
