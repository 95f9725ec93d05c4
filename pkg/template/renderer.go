package template

import (
	"context"
	"fmt"
	"strings"
)

const i18nPrefix = "t:"

// ErrorMarker replaces a reply whose template could not be rendered.
const ErrorMarker = "[template error]"

// Translator resolves an i18n key. Implementations walk from locale to fallback
// and report whether any candidate had the key.
type Translator interface {
	Translate(ctx context.Context, botID, key, locale, fallback string) (string, bool, error)
}

// Options carries the per-call inputs of Render.
type Options struct {
	BotID string
	// Locale is the user locale. DefaultLocale is the bot locale used as fallback.
	Locale        string
	DefaultLocale string
	// EmptyText, when set, replaces the whole output if the context holds no non-empty list.
	EmptyText string
}

// Renderer renders templates; it is safe for concurrent use.
type Renderer struct {
	translator Translator
}

// NewRenderer returns a Renderer. A nil translator renders every i18n key as "[key]".
func NewRenderer(translator Translator) *Renderer {
	return &Renderer{translator: translator}
}

// Render renders tmpl against vars. Errors come only from the translation source.
func (r *Renderer) Render(ctx context.Context, tmpl string, vars map[string]any, opts Options) (string, error) {
	if opts.EmptyText != "" && !HasNonEmptyList(vars) {
		return opts.EmptyText, nil
	}
	if strings.HasPrefix(tmpl, i18nPrefix) {
		return r.renderI18n(ctx, strings.TrimPrefix(tmpl, i18nPrefix), vars, opts)
	}
	return Expand(tmpl, vars), nil
}

func (r *Renderer) renderI18n(ctx context.Context, expr string, vars map[string]any, opts Options) (string, error) {
	key, params := ParseI18n(expr, vars)
	if key == "" {
		return "", nil
	}
	missing := "[" + key + "]"
	if r == nil || r.translator == nil {
		return missing, nil
	}

	locale := opts.Locale
	if locale == "" {
		locale = opts.DefaultLocale
	}
	text, ok, err := r.translator.Translate(ctx, opts.BotID, key, locale, opts.DefaultLocale)
	if err != nil {
		return "", fmt.Errorf("translate %q: %w", key, err)
	}
	if !ok {
		return missing, nil
	}
	if len(params) == 0 {
		return text, nil
	}
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// ParseI18n splits "key {a={{var}},b=lit}" into the key and its resolved placeholders.
// Placeholder values written as {{var}} come from vars; a missing variable yields "".
func ParseI18n(expr string, vars map[string]any) (string, map[string]string) {
	expr = strings.TrimSpace(expr)
	key := expr
	clause := ""
	if i := strings.IndexAny(expr, " {"); i >= 0 {
		key, clause = expr[:i], strings.TrimSpace(expr[i:])
	}
	if !strings.HasPrefix(clause, "{") || !strings.HasSuffix(clause, "}") {
		return key, nil
	}
	clause = clause[1 : len(clause)-1]

	params := make(map[string]string)
	for _, part := range strings.Split(clause, ",") {
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, openDelim) && strings.HasSuffix(value, closeDelim) {
			varName := strings.TrimSpace(value[len(openDelim) : len(value)-len(closeDelim)])
			value, _ = Scalar(vars[varName])
		}
		params[name] = value
	}
	return key, params
}
