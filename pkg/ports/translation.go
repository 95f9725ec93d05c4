package ports

import "context"

// TranslationSource looks up a single translated string.
type TranslationSource interface {
	// Lookup returns the text for (botID, locale, key) and whether it exists.
	Lookup(ctx context.Context, botID, locale, key string) (string, bool, error)
}
