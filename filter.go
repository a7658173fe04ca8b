package occasync

import (
	"regexp"
	"strings"
)

// Filter is a declarative match predicate evaluated against a record.
//
// Supported forms:
//
//	Filter{"status": "active"}                                  equality
//	Filter{"$or": []Filter{{"a": 1}, {"b": 2}}}                 logical OR
//	Filter{"title": Filter{"$regex": "pump", "$options": "i"}}  regex
//	Filter{"price": Filter{"$gte": 50.0, "$lte": 150.0}}        inclusive range
//
// Top-level keys are ANDed. A nil or empty filter matches every record.
type Filter map[string]interface{}

// Matches reports whether the record satisfies the filter.
//
// Semantics preserved from the store this replaces:
//   - an empty $or list matches nothing
//   - equality is scalar-only; a non-operator map or slice as a filter
//     value never matches (so unknown operators silently match nothing)
//   - range bounds compare number-to-number or string-to-string; mixed
//     types never match
//   - invalid regex patterns never match
func (f Filter) Matches(rec Record) bool {
	if len(f) == 0 {
		return true
	}

	for key, val := range f {
		if key == "$or" {
			if !matchOr(rec, val) {
				return false
			}
			continue
		}

		if sub := asFilterValue(val); sub != nil {
			if _, ok := sub["$regex"]; ok {
				if !matchRegex(rec[key], sub) {
					return false
				}
				continue
			}
			_, hasGte := sub["$gte"]
			_, hasLte := sub["$lte"]
			if hasGte || hasLte {
				if !matchRange(rec[key], sub) {
					return false
				}
				continue
			}
		}

		if !scalarEqual(rec[key], val) {
			return false
		}
	}
	return true
}

// matchOr is true iff at least one sub-filter matches
func matchOr(rec Record, val interface{}) bool {
	for _, sub := range orBranches(val) {
		if sub.Matches(rec) {
			return true
		}
	}
	return false
}

// orBranches accepts both []Filter (hand-built filters) and
// []interface{} (filters decoded from JSON)
func orBranches(val interface{}) []Filter {
	switch branches := val.(type) {
	case []Filter:
		return branches
	case []map[string]interface{}:
		out := make([]Filter, len(branches))
		for i, b := range branches {
			out[i] = Filter(b)
		}
		return out
	case []interface{}:
		var out []Filter
		for _, b := range branches {
			if m := asFilterValue(b); m != nil {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func matchRegex(fieldVal interface{}, sub Filter) bool {
	pattern, ok := sub["$regex"].(string)
	if !ok {
		return false
	}

	opts, _ := sub["$options"].(string)
	if strings.Contains(opts, "i") {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(stringify(fieldVal))
}

func matchRange(fieldVal interface{}, sub Filter) bool {
	if gte, ok := sub["$gte"]; ok {
		cmp, comparable := compareValues(fieldVal, gte)
		if !comparable || cmp < 0 {
			return false
		}
	}
	if lte, ok := sub["$lte"]; ok {
		cmp, comparable := compareValues(fieldVal, lte)
		if !comparable || cmp > 0 {
			return false
		}
	}
	return true
}

// compareValues orders two values when they share a comparable type.
// Numbers compare numerically (any Go numeric type on the filter side is
// widened to float64), strings lexicographically. Everything else is
// incomparable.
func compareValues(a, b interface{}) (int, bool) {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

// scalarEqual implements the store's strict equality: scalars compare by
// value, everything else (maps, slices) never matches
func scalarEqual(a, b interface{}) bool {
	if b == nil {
		return a == nil
	}

	switch bv := b.(type) {
	case string:
		av, ok := a.(string)
		return ok && av == bv
	case bool:
		av, ok := a.(bool)
		return ok && av == bv
	default:
		if bf, ok := asFloat(b); ok {
			af, aok := asFloat(a)
			return aok && af == bf
		}
		return false
	}
}

// asFloat widens any numeric value to float64. Records hold float64 after
// normalization; hand-built filters may carry untyped ints.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asFilterValue converts operator-object filter values of either map form
func asFilterValue(v interface{}) Filter {
	switch m := v.(type) {
	case Filter:
		return m
	case map[string]interface{}:
		return Filter(m)
	default:
		return nil
	}
}
