package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/brigade/core"
)

// TaskAllergenCheck is the task type handled by AllergenAgent.
const TaskAllergenCheck = "allergen_check"

// RoleMenuAuditor is the role of AllergenAgent.
const RoleMenuAuditor = "menu-auditor"

// TagAllergen marks knowledge written by AllergenAgent.
const TagAllergen = "allergen"

// allergenKeywords maps each allergen to ingredient keywords.
var allergenKeywords = []struct {
	allergen string
	keywords []string
}{
	{"gluten", []string{"wheat", "flour", "barley", "rye", "bread", "pasta", "breadcrumb", "couscous", "semolina"}},
	{"dairy", []string{"milk", "butter", "cheese", "cream", "yogurt", "yoghurt", "whey", "ghee"}},
	{"egg", []string{"egg", "mayonnaise", "meringue", "aioli"}},
	{"nuts", []string{"almond", "walnut", "cashew", "hazelnut", "pecan", "pistachio", "macadamia"}},
	{"peanut", []string{"peanut", "groundnut", "satay"}},
	{"soy", []string{"soy", "soya", "tofu", "edamame", "miso", "tempeh"}},
	{"fish", []string{"fish", "salmon", "tuna", "cod", "anchovy", "anchovies", "sardine"}},
	{"shellfish", []string{"shrimp", "prawn", "crab", "lobster", "mussel", "oyster", "clam", "scallop"}},
	{"sesame", []string{"sesame", "tahini"}},
}

// AllergenReport is the result of an AllergenAgent task.
type AllergenReport struct {
	Dish      string              `json:"dish,omitempty"`
	Allergens []string            `json:"allergens"`
	Matches   map[string][]string `json:"matches"`
}

// AllergenAgent flags allergens in a dish's ingredient list.
type AllergenAgent struct {
	BaseAgent
}

// NewAllergenAgent creates a menu auditor.
func NewAllergenAgent(name string) *AllergenAgent {
	a := &AllergenAgent{BaseAgent: NewBaseAgent(name, RoleMenuAuditor, TaskAllergenCheck)}
	a.SetDescription("Detects allergens in menu ingredients")
	return a
}

// DetectAllergens scans ingredients against the keyword table. Allergens are
// reported in table order.
func DetectAllergens(ingredients []string) AllergenReport {
	report := AllergenReport{Allergens: []string{}, Matches: map[string][]string{}}
	for _, entry := range allergenKeywords {
		for _, ing := range ingredients {
			lower := strings.ToLower(ing)
			for _, kw := range entry.keywords {
				if strings.Contains(lower, kw) {
					if !slices.Contains(report.Matches[entry.allergen], ing) {
						report.Matches[entry.allergen] = append(report.Matches[entry.allergen], ing)
					}
					break
				}
			}
		}
		if len(report.Matches[entry.allergen]) > 0 {
			report.Allergens = append(report.Allergens, entry.allergen)
		}
	}
	return report
}

// ingredientsFrom accepts []string, []any or a comma separated string.
func ingredientsFrom(v any) []string {
	var raw []string
	switch val := v.(type) {
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(val, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Process implements core.Agent.
func (a *AllergenAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	v, _ := task.Context.Get("ingredients")
	ingredients := ingredientsFrom(v)
	if len(ingredients) == 0 {
		return task, errors.New("no ingredients provided")
	}

	report := DetectAllergens(ingredients)
	report.Dish = task.Context.GetString("dish")

	if a.KnowledgeStore() != nil && len(report.Allergens) > 0 {
		subject := report.Dish
		if subject == "" {
			subject = task.Description
		}
		if _, err := a.StoreKnowledge(ctx, core.KnowledgeEntry{
			Topic:   "allergens:" + subject,
			Content: fmt.Sprintf("%s contains %s", subject, strings.Join(report.Allergens, ", ")),
			Tags:    append([]string{TagAllergen}, report.Allergens...),
		}); err != nil {
			return task, err
		}
	}

	return a.Complete(task, report), nil
}
