package diff

import (
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Change is one field whose proposed value differs from the stored value.
type Change struct {
	Name string
	Old  any
	New  any
}

// ValuesAreEqual reports whether two values are the same after normalization.
// A number and a numeric string are equal when the string parses to the same
// number; string comparison is case-sensitive.
func ValuesAreEqual(original, updated any) bool {
	return equalNormalized(Normalize(original), Normalize(updated))
}

// HasActualChanges is the negation of ValuesAreEqual.
func HasActualChanges(original, updated any) bool {
	return !ValuesAreEqual(original, updated)
}

// Changes returns the proposed keys whose values differ from original, sorted
// by name. Keys missing from original compare against nil.
func Changes(original, proposed map[string]any) []Change {
	keys := make([]string, 0, len(proposed))
	for key := range proposed {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var changes []Change
	for _, key := range keys {
		if HasActualChanges(original[key], proposed[key]) {
			changes = append(changes, Change{Name: key, Old: original[key], New: proposed[key]})
		}
	}
	return changes
}

func equalNormalized(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	aNum, aIsNum := a.(float64)
	bNum, bIsNum := b.(float64)
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)

	switch {
	case aIsNum && bIsNum:
		return aNum == bNum
	case aIsNum && bIsStr:
		return numericStringEquals(bStr, aNum)
	case aIsStr && bIsNum:
		return numericStringEquals(aStr, bNum)
	case aIsStr && bIsStr:
		return aStr == bStr
	}

	aList, aIsList := a.([]any)
	bList, bIsList := b.([]any)
	if aIsList && bIsList {
		if len(aList) != len(bList) {
			return false
		}
		for i := range aList {
			if !equalNormalized(aList[i], bList[i]) {
				return false
			}
		}
		return true
	}

	aMap, aIsMap := a.(map[string]any)
	bMap, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		if len(aMap) != len(bMap) {
			return false
		}
		for key, aValue := range aMap {
			bValue, ok := bMap[key]
			if !ok || !equalNormalized(aValue, bValue) {
				return false
			}
		}
		return true
	}

	if aTime, ok := a.(time.Time); ok {
		bTime, ok := b.(time.Time)
		return ok && aTime.Equal(bTime)
	}

	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

func numericStringEquals(value string, number float64) bool {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}
	return parsed == number
}
