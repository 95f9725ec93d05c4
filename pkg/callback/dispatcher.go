// Package callback routes inline keyboard presses to the widget that drew the button.
//
// Callback payloads are colon-delimited: {prefix}:{bot_id}:{user_id}:{args...}.
package callback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/botfactory/pkg/domain"
)

const separator = ":"

var (
	// ErrMalformed is returned for payloads that are not prefix:bot:user[:args].
	ErrMalformed = errors.New("malformed callback payload")
	// ErrUnknownPrefix is returned when no widget is registered for the prefix.
	ErrUnknownPrefix = errors.New("unknown callback prefix")
	// ErrMismatch is returned when the payload was issued for another bot or user.
	ErrMismatch = errors.New("callback issued for another conversation")
)

// ResultType tells the caller what to do with a widget answer.
type ResultType string

const (
	// Complete feeds Value into the wizard variable Var.
	Complete ResultType = "complete"
	// EditMessage redraws the message that carried the button.
	EditMessage ResultType = "edit_message"
	// Navigation was handled by the widget itself; nothing else happens.
	Navigation ResultType = "navigation"
)

// Result is a widget answer.
type Result struct {
	Type     ResultType
	Var      string
	Value    string
	Text     string
	Keyboard [][]domain.Button
}

// Payload is a parsed callback.
type Payload struct {
	Prefix string
	BotID  string
	UserID string
	Args   []string
}

// Parse splits raw callback data.
func Parse(data string) (Payload, error) {
	parts := strings.Split(data, separator)
	if len(parts) < 3 {
		return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
	}
	return Payload{Prefix: parts[0], BotID: parts[1], UserID: parts[2], Args: parts[3:]}, nil
}

// Encode builds callback data. Fields must not contain the separator, except the last
// argument which is read back verbatim by widgets that join the tail.
func Encode(prefix, botID, userID string, args ...string) string {
	return strings.Join(append([]string{prefix, botID, userID}, args...), separator)
}

// Handler is a widget.
type Handler interface {
	HandleCallback(ctx context.Context, p Payload) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, p Payload) (Result, error)

func (f HandlerFunc) HandleCallback(ctx context.Context, p Payload) (Result, error) {
	return f(ctx, p)
}

// Dispatcher manages the registered widgets.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher with the built-in pick widget registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	d.Register(PickPrefix, Pick{})
	return d
}

// Register adds a widget. If a widget with the same prefix exists, it is overwritten.
func (d *Dispatcher) Register(prefix string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[prefix] = h
}

// Dispatch parses data, checks it belongs to (botID, userID) and runs its widget.
func (d *Dispatcher) Dispatch(ctx context.Context, botID, userID, data string) (Result, error) {
	p, err := Parse(data)
	if err != nil {
		return Result{}, err
	}
	if p.BotID != botID || p.UserID != userID {
		return Result{}, ErrMismatch
	}

	d.mu.RLock()
	h, ok := d.handlers[p.Prefix]
	d.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownPrefix, p.Prefix)
	}
	return h.HandleCallback(ctx, p)
}

// PickPrefix is the prefix of one-tap option buttons.
const PickPrefix = "pick"

// Pick answers a step option button: pick:{bot}:{user}:{var}:{value}.
type Pick struct{}

// Button returns the option button for value of variable name.
func (Pick) Button(botID, userID, name, value string) domain.Button {
	return domain.Button{Text: value, Callback: Encode(PickPrefix, botID, userID, name, value)}
}

// HandleCallback implements Handler.
func (Pick) HandleCallback(_ context.Context, p Payload) (Result, error) {
	if len(p.Args) < 2 || p.Args[0] == "" {
		return Result{}, fmt.Errorf("%w: pick needs a variable and a value", ErrMalformed)
	}
	return Result{
		Type:  Complete,
		Var:   p.Args[0],
		Value: strings.Join(p.Args[1:], separator),
	}, nil
}
