package domain

// User-facing texts used when the spec does not provide its own.
const (
	TextGenericError    = "Sorry, something went wrong. Please try again later."
	TextCancelled       = "Cancelled."
	TextCompleted       = "Done!"
	TextFlowUnavailable = "This conversation is no longer available. Please start again."
	TextInvalidInput    = "Sorry, I could not read that message."
	TextFallback        = "Sorry, I didn't understand that."
	TextUnavailable     = "The assistant is temporarily unavailable. Please try again later."
	TextInvalidCallback = "This button is no longer valid."
)

// Turn is one inbound message as supplied by the messaging layer.
type Turn struct {
	BotID  string `json:"bot_id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Text   string `json:"text"`
	// Locale is the client language hint (e.g. Telegram language_code), optional.
	Locale string `json:"locale,omitempty"`
}

// Key returns the wizard session key of the turn.
func (t Turn) Key() SessionKey {
	return SessionKey{BotID: t.BotID, UserID: t.UserID}
}

// Callback is an inline keyboard button press.
type Callback struct {
	BotID  string `json:"bot_id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Data   string `json:"data"`
	Locale string `json:"locale,omitempty"`
}

// Reply is the rendered answer of a turn.
type Reply struct {
	Text      string     `json:"text"`
	ParseMode string     `json:"parse_mode"`
	Keyboard  [][]Button `json:"keyboard,omitempty"`
	// Edit asks the messaging layer to redraw the message that carried the callback.
	Edit bool `json:"edit,omitempty"`
}

// Button is one inline keyboard button.
type Button struct {
	Text     string `json:"text"`
	Callback string `json:"callback"`
}
