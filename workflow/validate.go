package workflow

import (
	"errors"
	"fmt"

	"github.com/hupe1980/brigade/core"
)

// ErrCycleDetected is returned when step dependencies form a cycle.
var ErrCycleDetected = errors.New("cycle detected in step dependencies")

// Validate checks a workflow definition. Every failure wraps
// core.ErrInvalidWorkflow.
func Validate(w core.Workflow) error {
	if w.ID == "" {
		return fmt.Errorf("%w: empty workflow id", core.ErrInvalidWorkflow)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow %s has no steps", core.ErrInvalidWorkflow, w.ID)
	}

	ids := make(map[string]bool, len(w.Steps))
	for i, s := range w.Steps {
		if s.ID == "" {
			return fmt.Errorf("%w: step %d has an empty id", core.ErrInvalidWorkflow, i)
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: duplicate step id %q", core.ErrInvalidWorkflow, s.ID)
		}
		if s.TaskType == "" {
			return fmt.Errorf("%w: step %q has an empty task type", core.ErrInvalidWorkflow, s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range w.Steps {
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("%w: step %q depends on unknown step %q", core.ErrInvalidWorkflow, s.ID, dep)
			}
		}
	}

	if _, err := TopologicalOrder(w); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidWorkflow, err)
	}
	return nil
}

// TopologicalOrder returns step ids so that every step follows its
// dependencies. Ready steps are emitted in declaration order. Dependencies on
// unknown steps are ignored.
func TopologicalOrder(w core.Workflow) ([]string, error) {
	index := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		index[s.ID] = i
	}

	inDegree := make([]int, len(w.Steps))
	dependents := make([][]int, len(w.Steps))
	for i, s := range w.Steps {
		for _, dep := range s.Dependencies {
			j, ok := index[dep]
			if !ok {
				continue
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]string, 0, len(w.Steps))
	done := make([]bool, len(w.Steps))
	for len(order) < len(w.Steps) {
		next := -1
		for i := range w.Steps {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("%w: %d of %d steps unreachable", ErrCycleDetected, len(w.Steps)-len(order), len(w.Steps))
		}
		done[next] = true
		order = append(order, w.Steps[next].ID)
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}
	return order, nil
}
