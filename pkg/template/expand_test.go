package template

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_Scalars(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"string", "hello", "hello"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 2.5, "2.5"},
		{"whole float", 3.0, "3.0"},
		{"float32", float32(0.5), "0.5"},
		{"negative whole float", -2.0, "-2.0"},
		{"json number", json.Number("7"), "7"},
		{"bool", true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand("{{x}}", map[string]any{"x": tt.v}))
		})
	}
}

func TestExpand_EachBlock(t *testing.T) {
	vars := map[string]any{"xs": []any{
		map[string]any{"y": 1},
		map[string]any{"y": 2},
	}}
	assert.Equal(t, "12", Expand("{{#each xs}}{{y}}{{/each}}", vars))
}

func TestExpand_EachUsesOuterContext(t *testing.T) {
	vars := map[string]any{
		"currency": "EUR",
		"items": []map[string]any{
			{"name": "spa", "price": 30},
			{"name": "massage", "price": 45.5},
		},
	}
	got := Expand("Menu:\n{{#each items}}- {{name}}: {{price}} {{currency}}\n{{/each}}", vars)
	assert.Equal(t, "Menu:\n- spa: 30 EUR\n- massage: 45.5 EUR\n", got)
}

func TestExpand_NestedEach(t *testing.T) {
	vars := map[string]any{"groups": []any{
		map[string]any{"g": "a", "items": []any{map[string]any{"i": 1}, map[string]any{"i": 2}}},
		map[string]any{"g": "b", "items": []any{map[string]any{"i": 3}}},
	}}
	got := Expand("{{#each groups}}[{{g}}:{{#each items}}{{i}}{{/each}}]{{/each}}", vars)
	assert.Equal(t, "[a:12][b:3]", got)
}

func TestExpand_Degrades(t *testing.T) {
	t.Run("missing variable is left", func(t *testing.T) {
		assert.Equal(t, "Hi {{name}}", Expand("Hi {{name}}", nil))
	})
	t.Run("non list each is empty", func(t *testing.T) {
		assert.Equal(t, "ab", Expand("a{{#each x}}{{y}}{{/each}}b", map[string]any{"x": "scalar"}))
	})
	t.Run("non mapping elements are skipped", func(t *testing.T) {
		vars := map[string]any{"xs": []any{1, map[string]any{"y": "ok"}, "s"}}
		assert.Equal(t, "ok", Expand("{{#each xs}}{{y}}{{/each}}", vars))
	})
	t.Run("unclosed each is left", func(t *testing.T) {
		assert.Equal(t, "{{#each xs}}1", Expand("{{#each xs}}{{y}}", map[string]any{"y": 1}))
	})
	t.Run("unclosed token is left", func(t *testing.T) {
		assert.Equal(t, "a {{b", Expand("a {{b", map[string]any{"b": 1}))
	})
	t.Run("composite values are left", func(t *testing.T) {
		assert.Equal(t, "{{m}}", Expand("{{m}}", map[string]any{"m": map[string]any{"a": 1}}))
	})
}

func TestExpand_SinglePass(t *testing.T) {
	vars := map[string]any{"a": "{{b}}", "b": "secret"}
	assert.Equal(t, "{{b}}", Expand("{{a}}", vars))
}

type fakeTranslator struct {
	texts map[string]string
	err   error
	calls [][]string
}

func (f *fakeTranslator) Translate(_ context.Context, botID, key, locale, fallback string) (string, bool, error) {
	f.calls = append(f.calls, []string{botID, key, locale, fallback})
	if f.err != nil {
		return "", false, f.err
	}
	for _, l := range []string{locale, fallback} {
		if s, ok := f.texts[l+"/"+key]; ok {
			return s, true, nil
		}
	}
	return "", false, nil
}

func TestRenderer_I18n(t *testing.T) {
	tr := &fakeTranslator{texts: map[string]string{
		"pt/booked": "Reservado: {service} às {slot} ({note})",
		"en/hello":  "Hello!",
	}}
	r := NewRenderer(tr)
	ctx := context.Background()

	got, err := r.Render(ctx, "t:booked {service={{service}},slot={{slot}},note=ok}",
		map[string]any{"service": "spa", "slot": "10:00"},
		Options{BotID: "b1", Locale: "pt", DefaultLocale: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Reservado: spa às 10:00 (ok)", got)

	got, err = r.Render(ctx, "t:hello", nil, Options{BotID: "b1", Locale: "fr", DefaultLocale: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", got)

	got, err = r.Render(ctx, "t:nope", nil, Options{BotID: "b1", DefaultLocale: "en"})
	require.NoError(t, err)
	assert.Equal(t, "[nope]", got)
	assert.Equal(t, []string{"b1", "nope", "en", "en"}, tr.calls[len(tr.calls)-1])
}

func TestRenderer_I18nSourceError(t *testing.T) {
	r := NewRenderer(&fakeTranslator{err: errors.New("db down")})
	_, err := r.Render(context.Background(), "t:hello", nil, Options{})
	assert.Error(t, err)
}

func TestRenderer_NoTranslator(t *testing.T) {
	got, err := NewRenderer(nil).Render(context.Background(), "t:hello", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "[hello]", got)
}

func TestRenderer_EmptyText(t *testing.T) {
	r := NewRenderer(nil)
	ctx := context.Background()
	opts := Options{EmptyText: "No bookings yet."}

	got, err := r.Render(ctx, "{{#each rows}}{{id}}{{/each}} {{title}}", map[string]any{"rows": []any{}, "title": "x"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "No bookings yet.", got)

	got, err = r.Render(ctx, "{{#each rows}}{{id}},{{/each}}", map[string]any{"rows": []any{map[string]any{"id": 7}}}, opts)
	require.NoError(t, err)
	assert.Equal(t, "7,", got)
}

func TestParseI18n(t *testing.T) {
	key, params := ParseI18n("greeting {name={{user}}, n=3}", map[string]any{"user": "Ana"})
	assert.Equal(t, "greeting", key)
	assert.Equal(t, map[string]string{"name": "Ana", "n": "3"}, params)

	key, params = ParseI18n("plain", nil)
	assert.Equal(t, "plain", key)
	assert.Nil(t, params)
}
