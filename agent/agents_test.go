package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/knowledge"
	"github.com/hupe1980/brigade/memory"
	"github.com/hupe1980/brigade/model"
)

var (
	_ core.Agent = (*StrategyAgent)(nil)
	_ core.Agent = (*AllergenAgent)(nil)
	_ core.Agent = (*MemoryAgent)(nil)
)

func TestAnalyze(t *testing.T) {
	r := Analyze("Our food costs and waste are too high, and staff turnover hurts. Costs keep rising.")
	assert.Equal(t, "cost", r.TopCategory)
	assert.Equal(t, 3, r.Scores["cost"])
	assert.Equal(t, 2, r.Scores["staffing"])
	assert.Equal(t, 0, r.Scores["growth"])
	require.Len(t, r.Recommendations, 2)

	empty := Analyze("hello there")
	assert.Empty(t, empty.TopCategory)
	assert.Len(t, empty.Recommendations, 1)
}

func TestStrategyAgent_Process(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	a := NewStrategyAgent("sam")
	a.SetKnowledgeStore(store)
	ctx := context.Background()

	task := core.Task{ID: "t1", Type: TaskBusinessStrategy, Context: core.TaskContext{Values: map[string]any{"text": "We want to expand to a new location"}}}
	out, err := a.Process(ctx, task)
	require.NoError(t, err)
	report := out.Result.(StrategyReport)
	assert.Equal(t, "growth", report.TopCategory)
	assert.Empty(t, report.PriorInsights)

	out, err = a.Process(ctx, task)
	require.NoError(t, err)
	report = out.Result.(StrategyReport)
	require.Len(t, report.PriorInsights, 1)
	assert.Contains(t, report.PriorInsights[0], "growth")

	entries, _ := store.All(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, RoleStrategist+":"+a.ID(), entries[0].Source)
}

func TestStrategyAgent_WithoutStoreAndText(t *testing.T) {
	a := NewStrategyAgent("sam")
	out, err := a.Process(context.Background(), core.Task{Type: TaskMarketAnalysis, Description: "how to improve instagram marketing"})
	require.NoError(t, err)
	assert.Equal(t, "marketing", out.Result.(StrategyReport).TopCategory)

	_, err = a.Process(context.Background(), core.Task{Type: TaskMarketAnalysis})
	assert.Error(t, err)
}

func TestDetectAllergens(t *testing.T) {
	r := DetectAllergens([]string{"Wheat flour", "butter", "Eggs", "sesame seeds", "tomato"})
	assert.Equal(t, []string{"gluten", "dairy", "egg", "sesame"}, r.Allergens)
	assert.Equal(t, []string{"Wheat flour"}, r.Matches["gluten"])
	assert.Empty(t, DetectAllergens([]string{"rice", "water"}).Allergens)
}

func TestAllergenAgent_Process(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	a := NewAllergenAgent("alma")
	a.SetKnowledgeStore(store)
	ctx := context.Background()

	for name, ingredients := range map[string]any{
		"csv":   "peanut butter, rice noodles, soy sauce",
		"slice": []any{"peanut butter", "rice noodles", "soy sauce", 42},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := a.Process(ctx, core.Task{Type: TaskAllergenCheck, Context: core.TaskContext{Values: map[string]any{
				"dish":        "Pad Thai",
				"ingredients": ingredients,
			}}})
			require.NoError(t, err)
			report := out.Result.(AllergenReport)
			assert.Equal(t, "Pad Thai", report.Dish)
			assert.Equal(t, []string{"dairy", "peanut", "soy"}, report.Allergens)
		})
	}

	tagged, err := store.RetrieveByTags(ctx, []string{TagAllergen}, 10)
	require.NoError(t, err)
	assert.Len(t, tagged, 2)

	_, err = a.Process(ctx, core.Task{Type: TaskAllergenCheck})
	assert.Error(t, err)
}

func TestMemoryAgent_Process(t *testing.T) {
	m := model.NewMockModel("mock")
	m.SetDefaultResponse(`[{"content":"Prefers oat milk","category":"preference"}]`)

	store := knowledge.NewInMemoryStore()
	a := NewMemoryAgent("mo", memory.NewExtractor(m))
	a.SetKnowledgeStore(store)

	out, err := a.Process(context.Background(), core.Task{Type: TaskExtractMemories, Context: core.TaskContext{Values: map[string]any{
		"conversation": "I always take oat milk in my latte",
	}}})
	require.NoError(t, err)
	stored := out.Result.([]core.KnowledgeEntry)
	require.Len(t, stored, 1)
	assert.Equal(t, "Prefers oat milk", stored[0].Content)
	assert.ElementsMatch(t, []string{TagMemory, "preference"}, stored[0].Tags)
}

func TestMemoryAgent_UpstreamFailure(t *testing.T) {
	m := model.NewMockModel("mock")
	m.SetError(errors.New("503 service unavailable"))

	a := NewMemoryAgent("mo", memory.NewExtractor(m))
	a.SetKnowledgeStore(knowledge.NewInMemoryStore())

	_, err := a.Process(context.Background(), core.Task{Type: TaskExtractMemories, Context: core.TaskContext{Values: map[string]any{
		"conversation": "hello",
	}}})
	assert.ErrorIs(t, err, core.ErrUpstream)
}
