package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/logging"
)

// Strategy agent task types.
const (
	TaskBusinessStrategy = "business_strategy"
	TaskMarketAnalysis   = "market_analysis"
)

// RoleStrategist is the role of StrategyAgent.
const RoleStrategist = "strategist"

// TagStrategy marks knowledge written by StrategyAgent.
const TagStrategy = "strategy"

type strategyCategory struct {
	name           string
	pattern        *regexp.Regexp
	recommendation string
}

var strategyCategories = []strategyCategory{
	{
		name:           "cost",
		pattern:        regexp.MustCompile(`(?i)\b(cost|costs|expense|expenses|waste|margin|margins|supplier|suppliers|price of)\b`),
		recommendation: "Renegotiate supplier contracts and track food waste per dish.",
	},
	{
		name:           "growth",
		pattern:        regexp.MustCompile(`(?i)\b(grow|growth|expand|expansion|new location|franchise|revenue|scale)\b`),
		recommendation: "Validate demand with a pop-up before committing to a new location.",
	},
	{
		name:           "marketing",
		pattern:        regexp.MustCompile(`(?i)\b(marketing|brand|social media|instagram|promotion|promotions|review|reviews|customers?)\b`),
		recommendation: "Run a loyalty promotion and respond to every online review within a day.",
	},
	{
		name:           "operations",
		pattern:        regexp.MustCompile(`(?i)\b(kitchen|wait time|wait times|inventory|service|workflow|delivery|throughput)\b`),
		recommendation: "Map the ticket-to-table flow and remove the slowest station bottleneck.",
	},
	{
		name:           "staffing",
		pattern:        regexp.MustCompile(`(?i)\b(staff|staffing|hire|hiring|turnover|training|schedule|scheduling|shift|shifts)\b`),
		recommendation: "Cross-train staff and publish shift schedules two weeks ahead.",
	},
}

// StrategyReport is the result of a StrategyAgent task.
type StrategyReport struct {
	TopCategory     string         `json:"topCategory"`
	Scores          map[string]int `json:"scores"`
	Recommendations []string       `json:"recommendations"`
	PriorInsights   []string       `json:"priorInsights,omitempty"`
}

// StrategyAgent scores business text against keyword categories and
// recommends actions for the strongest ones.
type StrategyAgent struct {
	BaseAgent
}

// NewStrategyAgent creates a strategist.
func NewStrategyAgent(name string) *StrategyAgent {
	a := &StrategyAgent{BaseAgent: NewBaseAgent(name, RoleStrategist, TaskBusinessStrategy, TaskMarketAnalysis)}
	a.SetDescription("Scores business questions by category and recommends next steps")
	return a
}

// Analyze scores text. It is pure and exported for reuse.
func Analyze(text string) StrategyReport {
	report := StrategyReport{Scores: make(map[string]int, len(strategyCategories))}
	for _, c := range strategyCategories {
		report.Scores[c.name] = len(c.pattern.FindAllStringIndex(text, -1))
	}

	ranked := make([]strategyCategory, len(strategyCategories))
	copy(ranked, strategyCategories)
	sort.SliceStable(ranked, func(i, j int) bool {
		return report.Scores[ranked[i].name] > report.Scores[ranked[j].name]
	})

	for _, c := range ranked {
		if report.Scores[c.name] == 0 {
			break
		}
		if report.TopCategory == "" {
			report.TopCategory = c.name
		}
		report.Recommendations = append(report.Recommendations, c.recommendation)
	}
	if report.TopCategory == "" {
		report.Recommendations = []string{"Describe the business question in more detail."}
	}
	return report
}

// Process implements core.Agent.
func (a *StrategyAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	text := task.Context.GetString("text")
	if text == "" {
		text = task.Description
	}
	if strings.TrimSpace(text) == "" {
		return task, errors.New("no text to analyze")
	}

	report := Analyze(text)
	a.Log(logging.LogLevelDebug, "strategy scored", "task_id", task.ID, "top", report.TopCategory)

	if report.TopCategory == "" || a.KnowledgeStore() == nil {
		return a.Complete(task, report), nil
	}

	prior, err := a.RetrieveKnowledgeByTags(ctx, report.TopCategory)
	if err != nil {
		return task, err
	}
	for _, e := range prior {
		if e.HasAnyTag([]string{TagStrategy}) {
			report.PriorInsights = append(report.PriorInsights, e.Content)
		}
	}

	if _, err := a.StoreKnowledge(ctx, core.KnowledgeEntry{
		Topic:   "strategy:" + report.TopCategory,
		Content: fmt.Sprintf("%s: %s", report.TopCategory, report.Recommendations[0]),
		Tags:    []string{TagStrategy, report.TopCategory},
	}); err != nil {
		return task, err
	}

	return a.Complete(task, report), nil
}
