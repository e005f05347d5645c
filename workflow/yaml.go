package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/brigade/core"
)

type definition struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Steps       []stepDefinition `yaml:"steps"`
}

type stepDefinition struct {
	ID          string          `yaml:"id"`
	TaskType    string          `yaml:"task_type"`
	Description string          `yaml:"description"`
	AgentRole   string          `yaml:"agent_role"`
	DependsOn   []string        `yaml:"depends_on"`
	When        *whenDefinition `yaml:"when"`
}

type whenDefinition struct {
	Equals    map[string]any `yaml:"equals"`
	Exists    []string       `yaml:"exists"`
	NotExists []string       `yaml:"not_exists"`
}

func (w *whenDefinition) condition() core.Condition {
	if w == nil {
		return nil
	}

	keys := make([]string, 0, len(w.Equals))
	for k := range w.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conds []core.Condition
	for _, k := range keys {
		conds = append(conds, Equals(k, w.Equals[k]))
	}
	for _, k := range w.Exists {
		conds = append(conds, Exists(k))
	}
	for _, k := range w.NotExists {
		conds = append(conds, NotExists(k))
	}
	if len(conds) == 0 {
		return nil
	}
	return All(conds...)
}

// Parse decodes and validates a YAML workflow definition. Unknown fields are
// rejected.
func Parse(data []byte) (core.Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Workflow{}, fmt.Errorf("%w: empty document", core.ErrInvalidWorkflow)
		}
		return core.Workflow{}, fmt.Errorf("%w: %w", core.ErrInvalidWorkflow, err)
	}

	w := core.Workflow{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Steps:       make([]core.WorkflowStep, 0, len(def.Steps)),
	}
	for _, s := range def.Steps {
		w.Steps = append(w.Steps, core.WorkflowStep{
			ID:           s.ID,
			TaskType:     s.TaskType,
			Description:  s.Description,
			AgentRole:    s.AgentRole,
			Dependencies: s.DependsOn,
			Condition:    s.When.condition(),
		})
	}

	if err := Validate(w); err != nil {
		return core.Workflow{}, err
	}
	return w, nil
}

// Load reads and parses a YAML workflow file.
func Load(path string) (core.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Workflow{}, fmt.Errorf("failed to read workflow file: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return core.Workflow{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}
