package theme

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

const Default = "light"

type Theme struct {
	Name         string            `json:"name" yaml:"name"`
	Label        string            `json:"label" yaml:"label"`
	Description  string            `json:"description" yaml:"description"`
	CSSVariables map[string]string `json:"css_variables" yaml:"css_variables"`
}

// Overrides replaces individual palette entries of a built-in theme.
type Overrides struct {
	Background string `json:"background" yaml:"background"`
	Surface    string `json:"surface" yaml:"surface"`
	Text       string `json:"text" yaml:"text"`
	Muted      string `json:"muted" yaml:"muted"`
	Accent     string `json:"accent" yaml:"accent"`
	Danger     string `json:"danger" yaml:"danger"`
	Border     string `json:"border" yaml:"border"`
	Radius     string `json:"radius" yaml:"radius"`
	Font       string `json:"font" yaml:"font"`
}

const sans = "'Inter', 'Segoe UI', system-ui, sans-serif"

func builtins() map[string]Theme {
	return map[string]Theme{
		"light": {
			Name:        "light",
			Label:       "Light",
			Description: "White cards on a soft gray page with a blue accent",
			CSSVariables: map[string]string{
				"--bg":            "#f3f4f6",
				"--bg-elevated":   "#ffffff",
				"--text":          "#111827",
				"--muted":         "#6b7280",
				"--accent":        "#2563eb",
				"--accent-strong": "#1d4ed8",
				"--danger":        "#dc2626",
				"--success":       "#16a34a",
				"--border":        "#e5e7eb",
				"--radius":        "10px",
				"--font":          sans,
			},
		},
		"dark": {
			Name:        "dark",
			Label:       "Dark",
			Description: "Slate surfaces for low-light rooms",
			CSSVariables: map[string]string{
				"--bg":            "#0f172a",
				"--bg-elevated":   "#1e293b",
				"--text":          "#e2e8f0",
				"--muted":         "#94a3b8",
				"--accent":        "#60a5fa",
				"--accent-strong": "#93c5fd",
				"--danger":        "#f87171",
				"--success":       "#4ade80",
				"--border":        "#334155",
				"--radius":        "10px",
				"--font":          sans,
			},
		},
		"indigo": {
			Name:        "indigo",
			Label:       "Indigo",
			Description: "Admin-console palette with an indigo accent",
			CSSVariables: map[string]string{
				"--bg":            "#eef2ff",
				"--bg-elevated":   "#ffffff",
				"--text":          "#1e1b4b",
				"--muted":         "#4b5563",
				"--accent":        "#4f46e5",
				"--accent-strong": "#4338ca",
				"--danger":        "#e11d48",
				"--success":       "#059669",
				"--border":        "#c7d2fe",
				"--radius":        "14px",
				"--font":          sans,
			},
		},
	}
}

// List returns the built-in themes ordered by name.
func List() []Theme {
	all := builtins()
	items := make([]Theme, 0, len(all))
	for _, t := range all {
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func Names() []string {
	return slices.Sorted(maps.Keys(builtins()))
}

func Resolve(name string, o Overrides) (Theme, error) {
	t, ok := builtins()[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Theme{}, fmt.Errorf("unknown theme %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	apply := func(key, value string) {
		if value != "" {
			t.CSSVariables[key] = value
		}
	}
	apply("--bg", o.Background)
	apply("--bg-elevated", o.Surface)
	apply("--text", o.Text)
	apply("--muted", o.Muted)
	apply("--accent", o.Accent)
	apply("--danger", o.Danger)
	apply("--border", o.Border)
	apply("--radius", o.Radius)
	apply("--font", o.Font)
	return t, nil
}

// CSS renders the theme as a :root rule with keys in stable order.
func (t Theme) CSS() string {
	var b strings.Builder
	b.WriteString(":root{")
	for _, k := range slices.Sorted(maps.Keys(t.CSSVariables)) {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(t.CSSVariables[k])
		b.WriteByte(';')
	}
	b.WriteString("}")
	return b.String()
}
