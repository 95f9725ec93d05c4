// Package mcp exposes bots to agents over the Model Context Protocol, so a flow can be
// previewed turn by turn without a messaging platform.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/internal/validator"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const specURIPrefix = "botfactory://bots/"

// Engine is the conversational core driven by the tools.
type Engine interface {
	HandleTurn(ctx context.Context, turn domain.Turn) domain.Reply
	HandleCallback(ctx context.Context, cb domain.Callback) domain.Reply
}

// ReplyResponse aligns with the HTTP API reply body.
type ReplyResponse struct {
	Text      string            `json:"text" jsonschema_description:"Rendered reply text"`
	ParseMode string            `json:"parse_mode" jsonschema_description:"Telegram parse mode of the text"`
	Keyboard  [][]domain.Button `json:"keyboard,omitempty" jsonschema_description:"Inline keyboard rows; press a button with press_button"`
	Edit      bool              `json:"edit,omitempty" jsonschema_description:"Whether the message carrying the button is redrawn"`
}

// SendMessageArgs are the arguments of send_message.
type SendMessageArgs struct {
	BotID  string `json:"bot_id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// PressButtonArgs are the arguments of press_button.
type PressButtonArgs struct {
	BotID  string `json:"bot_id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
	Data   string `json:"data"`
}

// FlowsResponse lists the flows of a bot.
type FlowsResponse struct {
	BotID   string        `json:"bot_id"`
	Version string        `json:"version"`
	Flows   []FlowSummary `json:"flows" jsonschema_description:"Flows by entry command"`
}

// FlowSummary describes one flow.
type FlowSummary struct {
	EntryCmd string   `json:"entry_cmd"`
	Kind     string   `json:"kind"`
	Steps    []string `json:"steps,omitempty" jsonschema_description:"Variables collected, in order"`
}

// ValidateResponse lists the issues found in a spec.
type ValidateResponse struct {
	Valid  bool               `json:"valid"`
	Issues []*validator.Issue `json:"issues,omitempty"`
}

// Server wraps the wizard engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	specs     ports.SpecLoader
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSpecs enables list_flows and the spec resources.
func WithSpecs(specs ports.SpecLoader) Option {
	return func(s *Server) {
		s.specs = specs
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("botfactory-mcp", strings.TrimSpace(version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	if s.specs != nil {
		s.registerResources()
	}
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a text message to a bot as the given user and return the bot reply."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot to talk to")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Simulated user; each user has its own wizard")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text, e.g. /book or an answer")),
		mcp.WithString("chat_id", mcp.Description("Chat id, defaults to the user id")),
		mcp.WithString("locale", mcp.Description("User language, e.g. pt-BR")),
		mcp.WithOutputSchema[ReplyResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("press_button",
		mcp.WithDescription("Press an inline keyboard button by its callback data."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot to talk to")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Simulated user")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Callback data of the button")),
		mcp.WithString("chat_id", mcp.Description("Chat id, defaults to the user id")),
		mcp.WithOutputSchema[ReplyResponse](),
	), mcp.NewStructuredToolHandler(s.handlePressButton))

	s.mcpServer.AddTool(mcp.NewTool("validate_spec",
		mcp.WithDescription("Lint a bot spec given as JSON and list its issues."),
		mcp.WithString("spec", mcp.Required(), mcp.Description("Bot spec document (JSON)")),
		mcp.WithOutputSchema[ValidateResponse](),
	), mcp.NewStructuredToolHandler(s.handleValidateSpec))

	if s.specs != nil {
		s.mcpServer.AddTool(mcp.NewTool("list_flows",
			mcp.WithDescription("List the flows of a bot with their entry commands."),
			mcp.WithString("bot_id", mcp.Required(), mcp.Description("Bot id")),
			mcp.WithOutputSchema[FlowsResponse](),
		), mcp.NewStructuredToolHandler(s.handleListFlows))
	}
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args SendMessageArgs) (ReplyResponse, error) {
	if args.BotID == "" || args.UserID == "" {
		return ReplyResponse{}, errors.New("bot_id and user_id are required")
	}
	chatID := args.ChatID
	if chatID == "" {
		chatID = args.UserID
	}
	reply := s.engine.HandleTurn(ctx, domain.Turn{
		BotID:  args.BotID,
		UserID: args.UserID,
		ChatID: chatID,
		Text:   args.Text,
		Locale: args.Locale,
	})
	return toResponse(reply), nil
}

func (s *Server) handlePressButton(ctx context.Context, _ mcp.CallToolRequest, args PressButtonArgs) (ReplyResponse, error) {
	if args.BotID == "" || args.UserID == "" || args.Data == "" {
		return ReplyResponse{}, errors.New("bot_id, user_id and data are required")
	}
	chatID := args.ChatID
	if chatID == "" {
		chatID = args.UserID
	}
	reply := s.engine.HandleCallback(ctx, domain.Callback{
		BotID:  args.BotID,
		UserID: args.UserID,
		ChatID: chatID,
		Data:   args.Data,
	})
	return toResponse(reply), nil
}

func (s *Server) handleValidateSpec(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (ValidateResponse, error) {
	doc, _ := args["spec"].(string)
	var spec domain.BotSpec
	if err := json.Unmarshal([]byte(doc), &spec); err != nil {
		return ValidateResponse{}, fmt.Errorf("spec is not valid JSON: %w", err)
	}
	issues := validator.Lint(&spec)
	return ValidateResponse{Valid: validator.ValidateSpec(&spec) == nil, Issues: issues}, nil
}

func (s *Server) handleListFlows(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (FlowsResponse, error) {
	botID, _ := args["bot_id"].(string)
	spec, err := s.specs.LoadSpec(ctx, botID, "")
	if err != nil {
		return FlowsResponse{}, fmt.Errorf("load spec %q: %w", botID, err)
	}
	resp := FlowsResponse{BotID: botID, Version: spec.Version, Flows: make([]FlowSummary, 0, len(spec.Flows))}
	for _, f := range spec.Flows {
		sum := FlowSummary{EntryCmd: f.EntryCmd, Kind: string(f.Kind())}
		for _, step := range f.Steps {
			sum.Steps = append(sum.Steps, step.Var)
		}
		resp.Flows = append(resp.Flows, sum)
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: botfactory://bots/{bot_id}/spec
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(specURIPrefix+"{bot_id}/spec", "Bot spec",
		mcp.WithTemplateDescription("Latest spec of a bot"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readSpec)
}

func (s *Server) readSpec(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	botID := strings.TrimSuffix(strings.TrimPrefix(uri, specURIPrefix), "/spec")
	if botID == "" || botID == uri || strings.Contains(botID, "/") {
		return nil, fmt.Errorf("invalid spec uri %q", uri)
	}
	spec, err := s.specs.LoadSpec(ctx, botID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func toResponse(r domain.Reply) ReplyResponse {
	return ReplyResponse{Text: r.Text, ParseMode: r.ParseMode, Keyboard: r.Keyboard, Edit: r.Edit}
}
