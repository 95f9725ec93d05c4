package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  _           _    __            _                   `, "#818cf8"},
	{` | |__   ___ | |_ / _| __ _  ___| |_ ___  _ __ _   _ `, "#a78bfa"},
	{` | '_ \ / _ \| __| |_ / _' |/ __| __/ _ \| '__| | | |`, "#c084fc"},
	{` | |_) | (_) | |_|  _| (_| | (__| || (_) | |  | |_| |`, "#e879f9"},
	{` |_.__/ \___/ \__|_|  \__,_|\___|\__\___/|_|   \__, |`, "#f472b6"},
	{`                                               |___/ `, "#fb7185"},
}

// PrintBanner writes the botfactory ASCII banner to w.
// Colors degrade to the profile supported by w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
