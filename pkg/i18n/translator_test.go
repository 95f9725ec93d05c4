package i18n

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	StaticSource
	hits int
	err  error
}

func (c *countingSource) Lookup(ctx context.Context, botID, locale, key string) (string, bool, error) {
	c.hits++
	if c.err != nil {
		return "", false, c.err
	}
	return c.StaticSource.Lookup(ctx, botID, locale, key)
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"pt-BR", "pt", "en"}, Candidates("pt-BR", "en"))
	assert.Equal(t, []string{"en"}, Candidates("", "en"))
	assert.Equal(t, []string{"es_AR", "es", "pt-BR", "pt"}, Candidates("es_AR", "pt-BR"))
	assert.Empty(t, Candidates("", ""))
}

func TestTranslator_Fallback(t *testing.T) {
	src := &countingSource{StaticSource: StaticSource{
		"bot": {
			"pt": {"hi": "Olá"},
			"en": {"hi": "Hello", "bye": "Bye"},
		},
		"": {"en": {"shared": "Shared"}},
	}}
	tr := NewTranslator(src)
	ctx := context.Background()

	text, ok, err := tr.Translate(ctx, "bot", "hi", "pt-BR", "en")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Olá", text)

	text, ok, err = tr.Translate(ctx, "bot", "bye", "pt-BR", "en")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bye", text)

	text, ok, err = tr.Translate(ctx, "bot", "shared", "en", "en")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Shared", text)

	_, ok, err = tr.Translate(ctx, "bot", "missing", "pt", "en")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTranslator_Caches(t *testing.T) {
	src := &countingSource{StaticSource: StaticSource{"bot": {"en": {"hi": "Hello"}}}}
	tr := NewTranslator(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := tr.Translate(ctx, "bot", "hi", "en", "en")
		require.NoError(t, err)
		_, _, err = tr.Translate(ctx, "bot", "nope", "en", "en")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.hits)

	tr.Flush()
	_, _, _ = tr.Translate(ctx, "bot", "hi", "en", "en")
	assert.Equal(t, 3, src.hits)
}

func TestTranslator_NoCache(t *testing.T) {
	src := &countingSource{StaticSource: StaticSource{"bot": {"en": {"hi": "Hello"}}}}
	tr := NewTranslator(src, WithCacheTTL(0))
	for i := 0; i < 2; i++ {
		_, _, _ = tr.Translate(context.Background(), "bot", "hi", "en", "en")
	}
	assert.Equal(t, 2, src.hits)
}

func TestTranslator_SourceError(t *testing.T) {
	tr := NewTranslator(&countingSource{err: errors.New("boom")})
	_, _, err := tr.Translate(context.Background(), "bot", "hi", "en", "en")
	assert.Error(t, err)
}
