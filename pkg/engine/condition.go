package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/reapflow/reapflow/pkg/models"
)

var (
	ErrMissingField       = errors.New("if_then condition requires a field")
	ErrUnknownOperator    = errors.New("if_then condition has an unknown operator")
	ErrNotComparable      = errors.New("if_then condition values are not comparable")
	errFieldNotResolvable = errors.New("field not present")
)

// EvaluateCondition evaluates an if_then node's configuration against the
// execution state. The field is a dot path rooted at the trigger payload;
// "node_results.<id>..." reaches earlier node output. A field that does not
// resolve is not an error: the condition simply takes the no branch (except
// for not_exists, which matches).
func EvaluateCondition(config map[string]any, executionCtx models.ExecutionContext) (bool, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return false, ErrMissingField
	}

	operator, _ := config["operator"].(string)
	expected := config["value"]

	actual, err := resolveField(field, executionCtx)
	resolved := err == nil

	switch operator {
	case "exists":
		return resolved && actual != nil, nil
	case "not_exists":
		return !resolved || actual == nil, nil
	}

	if !resolved {
		return false, nil
	}

	switch operator {
	case "equals":
		return looseEqual(actual, expected), nil
	case "not_equals":
		return !looseEqual(actual, expected), nil
	case "contains":
		return contains(actual, expected), nil
	case "not_contains":
		return !contains(actual, expected), nil
	case "greater_than":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a > b })
	case "less_than":
		return compareNumbers(actual, expected, func(a, b float64) bool { return a < b })
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
}

// resolveField walks a dot path through the execution state. Paths starting
// with "trigger" or "node_results" are explicit roots; anything else is
// looked up in the trigger payload.
func resolveField(path string, executionCtx models.ExecutionContext) (any, error) {
	segments := strings.Split(path, ".")

	var current any

	switch segments[0] {
	case "trigger", "trigger_data":
		current = executionCtx.TriggerData
		segments = segments[1:]
	case "node_results":
		current = executionCtx.NodeResults
		segments = segments[1:]
	default:
		current = executionCtx.TriggerData
	}

	for _, segment := range segments {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, errFieldNotResolvable
		}

		current, ok = asMap[segment]
		if !ok {
			return nil, errFieldNotResolvable
		}
	}

	return current, nil
}

// looseEqual compares scalar values across the type drift JSON decoding
// introduces: numbers compare numerically, everything else by string form.
func looseEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}

	actualNum, actualOK := toFloat(actual)
	expectedNum, expectedOK := toFloat(expected)

	if actualOK && expectedOK {
		return actualNum == expectedNum
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

// contains matches substrings for strings and membership for slices.
func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected))
	case []any:
		for _, item := range v {
			if looseEqual(item, expected) {
				return true
			}
		}

		return false
	case []string:
		for _, item := range v {
			if item == fmt.Sprintf("%v", expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func compareNumbers(actual, expected any, cmp func(a, b float64) bool) (bool, error) {
	actualNum, actualOK := toFloat(actual)
	expectedNum, expectedOK := toFloat(expected)

	if !actualOK || !expectedOK {
		return false, fmt.Errorf("%w: %v vs %v", ErrNotComparable, actual, expected)
	}

	return cmp(actualNum, expectedNum), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
