package templates

import (
	"bytes"
	"fmt"
	"io/fs"
	"text/template"
)

// Renderer interface for template rendering (for dependency injection)
type Renderer interface {
	ExecuteTemplate(name string, data any) (string, error)
	TemplateExists(name string) bool
}

// Manager holds a compiled template set, usually embedded in the binary
// next to the package that renders it.
type Manager struct {
	templates *template.Template
}

// GetDefaultFuncMap returns common template helper functions
func GetDefaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"float": func(val interface{}) float64 {
			switch v := val.(type) {
			case float64:
				return v
			case float32:
				return float64(v)
			case int:
				return float64(v)
			default:
				if dec, ok := val.(interface{ InexactFloat64() float64 }); ok {
					return dec.InexactFloat64()
				}
				return 0
			}
		},
		"mul": func(a, b float64) float64 {
			return a * b
		},
		"div": func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		},
		"add": func(a, b int) int {
			return a + b
		},
		"printf": fmt.Sprintf,
		"lt":     func(a, b float64) bool { return a < b },
		"gt":     func(a, b float64) bool { return a > b },
		"le":     func(a, b float64) bool { return a <= b },
		"ge":     func(a, b float64) bool { return a >= b },
	}
}

// NewFromFS parses every template matching the patterns from the given
// filesystem. Callers typically pass an embed.FS so prompt text ships
// inside the binary.
func NewFromFS(fsys fs.FS, patterns ...string) (*Manager, error) {
	tmpl, err := template.New("root").Funcs(GetDefaultFuncMap()).ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	if len(tmpl.Templates()) <= 1 { // "root" template doesn't count
		return nil, fmt.Errorf("no templates matched %v", patterns)
	}

	return &Manager{templates: tmpl}, nil
}

// MustFromFS is NewFromFS that panics on error. Embedded template sets
// are fixed at build time, so a failure here is a programming error.
func MustFromFS(fsys fs.FS, patterns ...string) *Manager {
	m, err := NewFromFS(fsys, patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// ExecuteTemplate renders template with data
func (m *Manager) ExecuteTemplate(name string, data any) (string, error) {
	tmpl := m.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}

// TemplateExists checks if template exists
func (m *Manager) TemplateExists(name string) bool {
	return m.templates.Lookup(name) != nil
}
