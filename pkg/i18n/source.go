package i18n

import (
	"context"
	"fmt"

	"github.com/aretw0/botfactory/pkg/ports"
)

// StaticSource serves translations from memory, keyed by bot, locale and key.
// An empty bot id entry applies to every bot.
type StaticSource map[string]map[string]map[string]string

// Lookup implements ports.TranslationSource.
func (s StaticSource) Lookup(_ context.Context, botID, locale, key string) (string, bool, error) {
	for _, bot := range []string{botID, ""} {
		if text, ok := s[bot][locale][key]; ok {
			return text, true, nil
		}
	}
	return "", false, nil
}

const lookupQuery = `SELECT value FROM translations WHERE bot_id = ? AND locale = ? AND msg_key = ? LIMIT 1`

// SQLSource reads translations from the "translations" table.
type SQLSource struct {
	db ports.Database
}

// NewSQLSource creates a source over db.
func NewSQLSource(db ports.Database) *SQLSource {
	return &SQLSource{db: db}
}

// Lookup implements ports.TranslationSource.
func (s *SQLSource) Lookup(ctx context.Context, botID, locale, key string) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx, lookupQuery, botID, locale, key)
	if err != nil {
		return "", false, fmt.Errorf("query translation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return "", false, fmt.Errorf("scan translation: %w", err)
	}
	return text, true, nil
}
