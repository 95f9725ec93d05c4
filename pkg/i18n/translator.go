// Package i18n resolves translated strings with locale fallback and an in-process cache.
package i18n

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long a looked-up key (found or not) is reused.
const DefaultCacheTTL = 5 * time.Minute

type entry struct {
	text  string
	found bool
}

// Translator walks the locale chain of a key and caches every answer.
type Translator struct {
	source ports.TranslationSource
	cache  *cache.Cache
	logger *slog.Logger
}

// Option configures the Translator.
type Option func(*Translator)

// WithCacheTTL changes the cache lifetime. A non-positive ttl disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(t *Translator) {
		if ttl <= 0 {
			t.cache = nil
			return
		}
		t.cache = cache.New(ttl, 2*ttl)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// NewTranslator creates a Translator over source.
func NewTranslator(source ports.TranslationSource, opts ...Option) *Translator {
	t := &Translator{
		source: source,
		cache:  cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate looks key up for locale, then its language, then fallback and its language.
func (t *Translator) Translate(ctx context.Context, botID, key, locale, fallback string) (string, bool, error) {
	for _, candidate := range Candidates(locale, fallback) {
		e, err := t.lookup(ctx, botID, candidate, key)
		if err != nil {
			return "", false, err
		}
		if e.found {
			return e.text, true, nil
		}
	}
	t.logger.Debug("translation missing", "bot_id", botID, "key", key, "locale", locale)
	return "", false, nil
}

func (t *Translator) lookup(ctx context.Context, botID, locale, key string) (entry, error) {
	cacheKey := botID + "\x00" + locale + "\x00" + key
	if t.cache != nil {
		if v, ok := t.cache.Get(cacheKey); ok {
			return v.(entry), nil
		}
	}
	text, found, err := t.source.Lookup(ctx, botID, locale, key)
	if err != nil {
		return entry{}, fmt.Errorf("lookup %s/%s: %w", locale, key, err)
	}
	e := entry{text: text, found: found}
	if t.cache != nil {
		t.cache.SetDefault(cacheKey, e)
	}
	return e, nil
}

// Flush drops every cached translation.
func (t *Translator) Flush() {
	if t.cache != nil {
		t.cache.Flush()
	}
}

// Candidates returns the ordered, de-duplicated lookup chain for locale with fallback.
// "pt-BR" with fallback "en" yields [pt-BR pt en].
func Candidates(locale, fallback string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(l string) {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			return
		}
		seen[l] = true
		out = append(out, l)
	}
	for _, l := range []string{locale, fallback} {
		add(l)
		add(Language(l))
	}
	return out
}

// Language strips the region of a locale tag ("pt-BR" and "pt_BR" become "pt").
func Language(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}
