package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDescription(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		values map[string]any
		want   string
	}{
		{"no markers", "Audit the menu", nil, "Audit the menu"},
		{"value", "Audit {{.dish}}", map[string]any{"dish": "Pad Thai"}, "Audit Pad Thai"},
		{"fallback", `Audit {{value "dish" "today's special"}}`, map[string]any{}, "Audit today's special"},
		{"fallback unused", `Audit {{value "dish" "x"}}`, map[string]any{"dish": "soup"}, "Audit soup"},
		{"upper", "{{upper .x}}", map[string]any{"x": "abc"}, "ABC"},
		{"join", `{{join ", " .items}}`, map[string]any{"items": []any{"egg", 1}}, "egg, 1"},
		{"no html escaping", "{{.x}}", map[string]any{"x": "fish & chips"}, "fish & chips"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderDescription(tt.text, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderDescription_Errors(t *testing.T) {
	_, err := RenderDescription("{{.x", nil)
	assert.ErrorContains(t, err, "parse description")

	_, err = RenderDescription("Fill {{.dish}} template", nil)
	assert.ErrorContains(t, err, "render description")
}
