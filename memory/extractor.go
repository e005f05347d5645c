package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/brigade/logging"
	"github.com/hupe1980/brigade/model"
)

// ErrCallLimitExceeded is returned once an extractor exhausts its call budget.
var ErrCallLimitExceeded = errors.New("exceeded max model calls")

// DefaultCategory labels memories the model did not categorize.
const DefaultCategory = "general"

const systemPrompt = `You extract durable memories from conversations.
Return ONLY a JSON array. Each element is an object with the fields
"content" (a single self-contained fact) and "category" (one of:
preference, fact, goal, decision, general).
Return [] when nothing is worth remembering.`

// Memory is a single fact extracted from a conversation.
type Memory struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Options configures an Extractor.
type Options struct {
	ModelName   string
	Temperature float64
	MaxTokens   int64
	// MaxCalls caps completions issued by the extractor; 0 means unlimited.
	MaxCalls int
	Logger   logging.Logger
}

// Extractor turns free-form conversation text into memories using a model.
type Extractor struct {
	model   model.Model
	opts    Options
	limiter *CallLimiter
}

// NewExtractor creates an extractor backed by m.
func NewExtractor(m model.Model, optFns ...func(o *Options)) *Extractor {
	opts := Options{
		Temperature: 0.3,
		MaxTokens:   500,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Extractor{
		model:   m,
		opts:    opts,
		limiter: NewCallLimiter(opts.MaxCalls),
	}
}

// Limiter exposes the call budget.
func (e *Extractor) Limiter() *CallLimiter { return e.limiter }

// Extract asks the model for memories contained in conversation. Upstream
// failures are returned wrapping core.ErrUpstream.
func (e *Extractor) Extract(ctx context.Context, conversation string) ([]Memory, error) {
	if strings.TrimSpace(conversation) == "" {
		return []Memory{}, nil
	}
	if err := e.limiter.Increment(); err != nil {
		return nil, err
	}

	text, err := model.Complete(ctx, e.model, model.Request{
		Model:       e.opts.ModelName,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: systemPrompt},
			{Role: model.RoleUser, Content: conversation},
		},
	})
	if err != nil {
		e.opts.Logger.Error("memory extraction failed", "provider", e.model.Info().Provider, "error", err)
		return nil, err
	}

	memories := ParseMemories(text)
	e.opts.Logger.Debug("memories extracted", "count", len(memories))
	return memories, nil
}

// ParseMemories decodes a model reply. It accepts a JSON array of objects or
// strings, optionally wrapped in a code fence, and falls back to bullet lines
// ("-", "*" or "•"). Prose without either yields no memories.
func ParseMemories(text string) []Memory {
	body := stripFence(strings.TrimSpace(text))

	if start, end := strings.Index(body, "["), strings.LastIndex(body, "]"); start >= 0 && end > start {
		if mems, err := decodeArray(body[start : end+1]); err == nil {
			return mems
		}
	}

	mems := []Memory{}
	for _, line := range strings.Split(body, "\n") {
		content, ok := bulletContent(line)
		if !ok {
			continue
		}
		mems = append(mems, Memory{Content: content, Category: DefaultCategory})
	}
	return mems
}

func bulletContent(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, marker := range []string{"- ", "* ", "• "} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
	}
	return "", false
}

func decodeArray(raw string) ([]Memory, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode memories: %w", err)
	}
	mems := make([]Memory, 0, len(items))
	for _, item := range items {
		var m Memory
		if err := json.Unmarshal(item, &m); err != nil {
			var s string
			if json.Unmarshal(item, &s) != nil {
				continue
			}
			m = Memory{Content: s}
		}
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			continue
		}
		if m.Category == "" {
			m.Category = DefaultCategory
		}
		mems = append(mems, m)
	}
	return mems, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
