package callback

import (
	"context"
	"testing"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("cal:bot:u1:2024:01")
	require.NoError(t, err)
	assert.Equal(t, Payload{Prefix: "cal", BotID: "bot", UserID: "u1", Args: []string{"2024", "01"}}, p)

	for _, bad := range []string{"", "cal", "cal:bot", "cal::u1", ":bot:u1"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}
}

func TestDispatcher_Pick(t *testing.T) {
	d := NewDispatcher()
	btn := Pick{}.Button("bot", "u1", "slot", "14:00")
	assert.Equal(t, domain.Button{Text: "14:00", Callback: "pick:bot:u1:slot:14:00"}, btn)

	res, err := d.Dispatch(context.Background(), "bot", "u1", btn.Callback)
	require.NoError(t, err)
	assert.Equal(t, Result{Type: Complete, Var: "slot", Value: "14:00"}, res)

	_, err = d.Dispatch(context.Background(), "bot", "u1", "pick:bot:u1:slot")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDispatcher_Routing(t *testing.T) {
	d := NewDispatcher()
	d.Register("page", HandlerFunc(func(_ context.Context, p Payload) (Result, error) {
		return Result{Type: EditMessage, Text: "page " + p.Args[0]}, nil
	}))
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "bot", "u1", "page:bot:u1:2")
	require.NoError(t, err)
	assert.Equal(t, EditMessage, res.Type)
	assert.Equal(t, "page 2", res.Text)

	_, err = d.Dispatch(ctx, "bot", "u1", "calendar:bot:u1:x")
	assert.ErrorIs(t, err, ErrUnknownPrefix)

	_, err = d.Dispatch(ctx, "bot", "u2", "page:bot:u1:2")
	assert.ErrorIs(t, err, ErrMismatch)
}
