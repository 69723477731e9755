package store

import (
	"reflect"
	"time"
)

// cloneValue returns a structurally independent copy of v. Plain maps clone
// recursively, sequences and numeric buffers clone element-wise, timestamps
// copy by value. Scalars are returned as-is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return cloneTree(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = cloneValue(item)
		}
		return clone
	case []float32:
		clone := make([]float32, len(val))
		copy(clone, val)
		return clone
	case []float64:
		clone := make([]float64, len(val))
		copy(clone, val)
		return clone
	case []int:
		clone := make([]int, len(val))
		copy(clone, val)
		return clone
	case []byte:
		clone := make([]byte, len(val))
		copy(clone, val)
		return clone
	case []string:
		clone := make([]string, len(val))
		copy(clone, val)
		return clone
	case time.Time:
		return val
	default:
		return v
	}
}

// cloneTree deep-copies a nested state tree.
func cloneTree(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	clone := make(map[string]any, len(tree))
	for key, value := range tree {
		clone[key] = cloneValue(value)
	}
	return clone
}

// mergeTrees composes overlay on top of base, returning a new tree. Nested
// maps merge key-wise; every other value from the overlay replaces the base
// value wholesale. Both inputs are left untouched.
func mergeTrees(base, overlay map[string]any) map[string]any {
	if base == nil && overlay == nil {
		return nil
	}
	merged := cloneTree(base)
	if merged == nil {
		merged = make(map[string]any, len(overlay))
	}
	for key, value := range overlay {
		if overlayMap, ok := value.(map[string]any); ok {
			if baseMap, ok := merged[key].(map[string]any); ok {
				merged[key] = mergeTrees(baseMap, overlayMap)
				continue
			}
		}
		merged[key] = cloneValue(value)
	}
	return merged
}

// valueEqual reports whether two values are deep-equal for the purposes of
// no-op write detection. Timestamps compare with time.Time.Equal and numeric
// scalars compare by magnitude across int/float kinds, so a value that
// round-tripped through persistence still counts as unchanged.
func valueEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if af, aok := numericValue(a); aok {
		bf, bok := numericValue(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
