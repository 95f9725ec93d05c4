package action

import (
	"context"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/template"
)

type replyParams struct {
	Text       string `mapstructure:"text"`
	EmptyText  string `mapstructure:"empty_text"`
	ParseMode  string `mapstructure:"parse_mode"`
	LLMImprove *bool  `mapstructure:"llm_improve"`
	Keyboard   any    `mapstructure:"keyboard"`
}

func (x *Executor) replyTemplate(ctx context.Context, raw map[string]any) (Result, error) {
	var p replyParams
	if err := decode(raw, &p); err != nil {
		return Result{}, err
	}

	text, err := x.engine.renderer.Render(ctx, p.Text, x.vars, template.Options{
		BotID:         x.subject.BotID,
		Locale:        x.subject.Locale,
		DefaultLocale: x.subject.DefaultLocale,
		EmptyText:     p.EmptyText,
	})
	if err != nil {
		x.engine.logger.Warn("template render failed", "bot_id", x.subject.BotID, "err", err)
		text = template.ErrorMarker
	}

	if text != "" && x.wantsImprovement(p.LLMImprove) {
		text = x.engine.improver.Improve(ctx, x.subject.BotID, x.subject.UserID, text)
	}

	keyboard := ParseKeyboard(p.Keyboard, x.vars)
	if text == "" && len(keyboard) == 0 {
		return Result{Kind: ResultNone}, nil
	}

	mode := p.ParseMode
	if mode == "" {
		mode = x.subject.ParseMode
	}
	return Result{
		Kind:  ResultReply,
		Reply: &domain.Reply{Text: text, ParseMode: mode, Keyboard: keyboard},
	}, nil
}

// wantsImprovement honors an explicit llm_improve and otherwise asks the A/B split.
func (x *Executor) wantsImprovement(explicit *bool) bool {
	if x.engine.improver == nil {
		return false
	}
	if explicit != nil {
		return *explicit
	}
	return x.engine.split.Enabled(x.subject.BotID, x.subject.UserID)
}

// ParseKeyboard converts a keyboard spec into button rows. Rows are kept as given and a
// bare button becomes a row of its own. Buttons without text or callback are dropped.
// Button fields are expanded against vars.
func ParseKeyboard(spec any, vars map[string]any) [][]domain.Button {
	items, ok := spec.([]any)
	if !ok {
		return nil
	}
	var rows [][]domain.Button
	for _, item := range items {
		var row []domain.Button
		switch v := item.(type) {
		case []any:
			for _, b := range v {
				if btn, ok := parseButton(b, vars); ok {
					row = append(row, btn)
				}
			}
		default:
			if btn, ok := parseButton(v, vars); ok {
				row = append(row, btn)
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func parseButton(v any, vars map[string]any) (domain.Button, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return domain.Button{}, false
	}
	text, _ := template.Scalar(m["text"])
	callback, _ := template.Scalar(m["callback"])
	if callback == "" {
		callback, _ = template.Scalar(m["callback_data"])
	}
	if text == "" || callback == "" {
		return domain.Button{}, false
	}
	return domain.Button{
		Text:     template.Expand(text, vars),
		Callback: template.Expand(callback, vars),
	}, true
}
