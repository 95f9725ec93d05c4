package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/botfactory/internal/presentation/tui"
	"github.com/aretw0/botfactory/pkg/domain"
)

// Engine is the conversational surface driven by the chat loop.
type Engine interface {
	HandleTurn(ctx context.Context, turn domain.Turn) domain.Reply
	HandleCallback(ctx context.Context, cb domain.Callback) domain.Reply
}

// ChatOptions configures an interactive session.
type ChatOptions struct {
	BotID  string
	UserID string
	Locale string

	In  io.Reader
	Out io.Writer

	// JSON prints every reply as a JSON line instead of rendering it.
	JSON bool
	// Quiet suppresses the banner and system messages.
	Quiet bool
	// Renderer defaults to a renderer for Out.
	Renderer *tui.Renderer
}

// Chat runs a read-eval-print loop against engine until the input ends, the user types
// exit or quit, or ctx is cancelled. "#N" presses the N-th button of the last reply.
func Chat(ctx context.Context, engine Engine, opts ChatOptions) error {
	if opts.Renderer == nil {
		opts.Renderer = tui.NewRenderer(opts.Out)
	}
	if !opts.Quiet && !opts.JSON {
		tui.PrintBanner(opts.Out)
		printSystemMessage(opts.Out, "Chatting with '%s' as '%s'. Type 'exit' to quit.", opts.BotID, opts.UserID)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var last domain.Reply
	for {
		if !opts.JSON {
			fmt.Fprint(opts.Out, "> ")
		}
		var line string
		select {
		case <-ctx.Done():
			if !opts.Quiet {
				fmt.Fprintln(opts.Out)
				printSystemMessage(opts.Out, "Interrupted.")
			}
			return nil
		case err := <-readErr:
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		}

		var reply domain.Reply
		if n, ok := buttonIndex(line); ok {
			buttons := tui.Buttons(last)
			if n < 1 || n > len(buttons) {
				printSystemMessage(opts.Out, "No button #%d.", n)
				continue
			}
			reply = engine.HandleCallback(ctx, domain.Callback{
				BotID:  opts.BotID,
				UserID: opts.UserID,
				Data:   buttons[n-1].Callback,
				Locale: opts.Locale,
			})
		} else {
			reply = engine.HandleTurn(ctx, domain.Turn{
				BotID:  opts.BotID,
				UserID: opts.UserID,
				Text:   line,
				Locale: opts.Locale,
			})
		}
		if err := printReply(opts, reply); err != nil {
			return err
		}
		if len(reply.Keyboard) > 0 || !reply.Edit {
			last = reply
		}
	}
}

func buttonIndex(line string) (int, bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(line[1:])
	return n, err == nil
}

func printReply(opts ChatOptions, reply domain.Reply) error {
	if opts.JSON {
		return json.NewEncoder(opts.Out).Encode(reply)
	}
	if reply.Text == "" && len(reply.Keyboard) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(opts.Out, strings.TrimRight(opts.Renderer.Reply(reply), "\n"))
	return err
}
