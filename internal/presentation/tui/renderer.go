package tui

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/aretw0/botfactory/pkg/domain"
)

// Renderer turns bot replies into terminal output.
// Styled markdown is used when the output is a terminal; plain text otherwise.
type Renderer struct {
	md func(string) (string, error)
}

// NewRenderer returns a renderer for w. Markdown styling is enabled only when w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	if !IsTerminal(w) {
		return &Renderer{}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: r.Render}
}

// NewPlainRenderer returns a renderer that never styles output.
func NewPlainRenderer() *Renderer {
	return &Renderer{}
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Reply renders a reply: the text followed by the keyboard as a numbered list.
func (r *Renderer) Reply(reply domain.Reply) string {
	var sb strings.Builder
	text := reply.Text
	if reply.ParseMode == "" || strings.EqualFold(reply.ParseMode, "HTML") {
		text = htmlToMarkdown(text)
	}
	sb.WriteString(text)

	if buttons := Buttons(reply); len(buttons) > 0 {
		sb.WriteString("\n\n")
		for i, b := range buttons {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, b.Text)
		}
	}

	out := sb.String()
	if r.md == nil {
		return stripMarkdown(out)
	}
	styled, err := r.md(out)
	if err != nil {
		return stripMarkdown(out)
	}
	return styled
}

// Buttons flattens the keyboard rows of a reply in display order.
func Buttons(reply domain.Reply) []domain.Button {
	var out []domain.Button
	for _, row := range reply.Keyboard {
		out = append(out, row...)
	}
	return out
}

var (
	tagReplacer = strings.NewReplacer(
		"<b>", "**", "</b>", "**",
		"<strong>", "**", "</strong>", "**",
		"<i>", "_", "</i>", "_",
		"<em>", "_", "</em>", "_",
		"<code>", "`", "</code>", "`",
		"<pre>", "\n```\n", "</pre>", "\n```\n",
		"<br>", "\n", "<br/>", "\n",
	)
	anyTag     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	emphasis   = regexp.MustCompile("\\*\\*|`")
	entityRepl = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&amp;", "&")
)

func htmlToMarkdown(s string) string {
	s = tagReplacer.Replace(s)
	s = anyTag.ReplaceAllString(s, "")
	return entityRepl.Replace(s)
}

func stripMarkdown(s string) string {
	return emphasis.ReplaceAllString(s, "")
}
