package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/markdown"
)

var (
	boldText   = color.New(color.Bold)
	italicText = color.New(color.Italic)
	codeText   = color.New(color.FgCyan)
	linkText   = color.New(color.FgBlue, color.Underline)
	stepText   = color.New(color.FgYellow)
	faintText  = color.New(color.Faint)
	errorText  = color.New(color.FgRed)
)

// renderMarkdown styles inline markdown spans for the terminal.
func renderMarkdown(text string) string {
	var b strings.Builder
	for _, span := range markdown.Parse(text) {
		switch span.Kind {
		case markdown.SpanBold:
			b.WriteString(boldText.Sprint(span.Text))
		case markdown.SpanItalic:
			b.WriteString(italicText.Sprint(span.Text))
		case markdown.SpanCode:
			b.WriteString(codeText.Sprint(span.Text))
		case markdown.SpanLink:
			b.WriteString(linkText.Sprint(span.Text))
			if span.URL != "" {
				b.WriteString(faintText.Sprintf(" (%s)", span.URL))
			}
		default:
			b.WriteString(span.Text)
		}
	}
	return b.String()
}

func printStep(step string) {
	stepText.Printf("  %s\n", step)
}

func printAssistant(msg chat.Message) {
	if msg.Failed {
		errorText.Printf("\n%s %s\n\n", appName, msg.Text)
		return
	}

	text := msg.Text
	if text == "" {
		text = "(no response)"
	}
	fmt.Printf("\n%s %s\n", appName, renderMarkdown(text))

	if len(msg.Sources) > 0 {
		faintText.Printf("  Sources: %s\n", strings.Join(msg.Sources, ", "))
	}
	fmt.Println()
}
