package workflow

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/brigade/core"
)

// Equals holds when the context value under key equals value, either exactly
// or by string form (so "3" matches 3).
func Equals(key string, value any) core.Condition {
	return func(ctx core.TaskContext) bool {
		v, ok := ctx.Get(key)
		if !ok {
			return false
		}
		return reflect.DeepEqual(v, value) || fmt.Sprint(v) == fmt.Sprint(value)
	}
}

// Exists holds when key is present.
func Exists(key string) core.Condition {
	return func(ctx core.TaskContext) bool {
		_, ok := ctx.Get(key)
		return ok
	}
}

// NotExists holds when key is absent.
func NotExists(key string) core.Condition {
	return func(ctx core.TaskContext) bool {
		_, ok := ctx.Get(key)
		return !ok
	}
}

// All holds when every condition holds. Nil conditions are skipped.
func All(conds ...core.Condition) core.Condition {
	return func(ctx core.TaskContext) bool {
		for _, c := range conds {
			if c != nil && !c(ctx) {
				return false
			}
		}
		return true
	}
}
