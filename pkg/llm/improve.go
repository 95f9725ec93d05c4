package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Bounds of the text improvement window, in characters.
const (
	MinImproveLength = 10
	MaxImproveLength = 500
)

const improvePrompt = "You polish chatbot replies. Rewrite the user's message to be clear and friendly, " +
	"keeping its meaning, language, placeholders and formatting tags. Reply with the rewritten text only."

// Completer is the part of Client the Improver needs.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Improver rewrites reply texts. It never fails: any problem yields the original text.
type Improver struct {
	client Completer
}

// NewImprover creates an Improver over client.
func NewImprover(client Completer) *Improver {
	return &Improver{client: client}
}

// Improve returns the rewritten text, or text itself when it is outside the improvement
// window, the backend fails, or the tenant circuit is open.
func (i *Improver) Improve(ctx context.Context, botID, userID, text string) string {
	if i == nil || i.client == nil {
		return text
	}
	n := utf8.RuneCountInString(text)
	if n < MinImproveLength || n > MaxImproveLength {
		return text
	}
	resp, err := i.client.Complete(ctx, Request{
		System: improvePrompt,
		User:   text,
		BotID:  botID,
		UserID: userID,
	})
	if err != nil || resp == nil || resp.Fallback {
		return text
	}
	improved := strings.TrimSpace(resp.Content)
	if improved == "" {
		return text
	}
	return improved
}
