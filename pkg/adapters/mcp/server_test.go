package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/botfactory/pkg/action"
	"github.com/aretw0/botfactory/pkg/adapters/memory"
	"github.com/aretw0/botfactory/pkg/session"
	"github.com/aretw0/botfactory/pkg/wizard"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spec = `{
  "version": "3",
  "flows": [
    {
      "entry_cmd": "/book",
      "type": "wizard",
      "steps": [
        {"ask": "service?", "var": "service", "options": ["massage", "spa"]},
        {"ask": "slot?", "var": "slot"}
      ],
      "on_complete": [{"type": "action.reply_template.v1", "params": {"text": "Booked: {{service}} at {{slot}}"}}]
    },
    {"entry_cmd": "/help", "on_enter": [{"type": "action.reply_template.v1", "params": {"text": "Send /book"}}]}
  ]
}`

func newServer(t *testing.T) *Server {
	t.Helper()
	specs, err := memory.NewFromJSON(map[string]string{"salon": spec})
	require.NoError(t, err)
	engine := wizard.NewEngine(specs, session.NewManager(memory.NewStore()), action.NewEngine())
	return NewServer(engine, "test", WithSpecs(specs))
}

func TestServer_Conversation(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	var req mcp.CallToolRequest

	reply, err := s.handleSendMessage(ctx, req, SendMessageArgs{BotID: "salon", UserID: "agent", Text: "/book"})
	require.NoError(t, err)
	assert.Equal(t, "service?", reply.Text)
	require.Len(t, reply.Keyboard, 2)

	reply, err = s.handlePressButton(ctx, req, PressButtonArgs{BotID: "salon", UserID: "agent", Data: reply.Keyboard[1][0].Callback})
	require.NoError(t, err)
	assert.Equal(t, "slot?", reply.Text)

	reply, err = s.handleSendMessage(ctx, req, SendMessageArgs{BotID: "salon", UserID: "agent", Text: "noon"})
	require.NoError(t, err)
	assert.Equal(t, "Booked: spa at noon", reply.Text)

	_, err = s.handleSendMessage(ctx, req, SendMessageArgs{BotID: "salon", Text: "/book"})
	assert.Error(t, err)
	_, err = s.handlePressButton(ctx, req, PressButtonArgs{BotID: "salon", UserID: "agent"})
	assert.Error(t, err)
}

func TestServer_ListFlows(t *testing.T) {
	s := newServer(t)
	resp, err := s.handleListFlows(context.Background(), mcp.CallToolRequest{}, map[string]any{"bot_id": "salon"})
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Version)
	assert.Equal(t, []FlowSummary{
		{EntryCmd: "/book", Kind: "wizard", Steps: []string{"service", "slot"}},
		{EntryCmd: "/help", Kind: "generic"},
	}, resp.Flows)

	_, err = s.handleListFlows(context.Background(), mcp.CallToolRequest{}, map[string]any{"bot_id": "ghost"})
	assert.Error(t, err)
}

func TestServer_ValidateSpec(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	resp, err := s.handleValidateSpec(ctx, mcp.CallToolRequest{}, map[string]any{"spec": spec})
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	resp, err = s.handleValidateSpec(ctx, mcp.CallToolRequest{}, map[string]any{
		"spec": `{"flows": [{"entry_cmd": "book", "on_enter": [{"type": "action.nope.v1"}]}]}`,
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	require.Len(t, resp.Issues, 2)
	assert.Equal(t, "flows[0].entry_cmd", resp.Issues[0].Path)

	_, err = s.handleValidateSpec(ctx, mcp.CallToolRequest{}, map[string]any{"spec": "{"})
	assert.Error(t, err)
}

func TestServer_ReadSpec(t *testing.T) {
	s := newServer(t)
	var req mcp.ReadResourceRequest
	req.Params.URI = "botfactory://bots/salon/spec"

	contents, err := s.readSpec(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)
	assert.True(t, strings.Contains(text.Text, `"entry_cmd": "/book"`))

	req.Params.URI = "botfactory://bots/ghost/spec"
	_, err = s.readSpec(context.Background(), req)
	assert.Error(t, err)

	req.Params.URI = "botfactory://other"
	_, err = s.readSpec(context.Background(), req)
	assert.Error(t, err)
}
