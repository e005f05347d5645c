package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// RenderDescription expands a step description as a text/template over the
// workflow context values. A reference to a missing key is an error, so
// callers can keep the raw description instead of rendering "<no value>".
//
// Besides field access ({{.dish}}) the template can call:
//
//	value "key" "fallback"  the value for key, or fallback when unset or empty
//	upper, lower            case conversion
//	join ", " .items        joins a slice with a separator
func RenderDescription(text string, values map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("description").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"value": func(key string, fallback any) any {
				if v, ok := values[key]; ok && v != nil && v != "" {
					return v
				}
				return fallback
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"join": func(sep string, items []any) string {
				parts := make([]string, len(items))
				for i, item := range items {
					parts[i] = fmt.Sprint(item)
				}
				return strings.Join(parts, sep)
			},
		}).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse description: %w", err)
	}

	if values == nil {
		values = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return buf.String(), nil
}
