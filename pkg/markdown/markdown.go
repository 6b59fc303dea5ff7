package markdown

import "strings"

type SpanKind int

const (
	SpanText SpanKind = iota
	SpanBold
	SpanItalic
	SpanCode
	SpanLink
)

// Span is one typed segment of inline-formatted text.
type Span struct {
	Kind SpanKind
	Text string
	URL  string
}

// Parse lexes the inline markers **bold**, *italic*, `code` and
// [label](url) into spans. Unpaired markers stay literal text.
func Parse(input string) []Span {
	var spans []Span
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			spans = append(spans, Span{Kind: SpanText, Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(input); {
		switch {
		case strings.HasPrefix(input[i:], "**"):
			if end := strings.Index(input[i+2:], "**"); end >= 0 {
				flush()
				spans = append(spans, Span{Kind: SpanBold, Text: input[i+2 : i+2+end]})
				i += end + 4
				continue
			}
		case input[i] == '*':
			if end := strings.IndexByte(input[i+1:], '*'); end >= 0 {
				flush()
				spans = append(spans, Span{Kind: SpanItalic, Text: input[i+1 : i+1+end]})
				i += end + 2
				continue
			}
		case input[i] == '`':
			if end := strings.IndexByte(input[i+1:], '`'); end >= 0 {
				flush()
				spans = append(spans, Span{Kind: SpanCode, Text: input[i+1 : i+1+end]})
				i += end + 2
				continue
			}
		case input[i] == '[':
			if label, url, length, ok := parseLink(input[i:]); ok {
				flush()
				spans = append(spans, Span{Kind: SpanLink, Text: label, URL: url})
				i += length
				continue
			}
		}
		text.WriteByte(input[i])
		i++
	}

	flush()
	return spans
}

// parseLink matches [label](url) at the start of s. Returns the total
// consumed length on success.
func parseLink(s string) (label, url string, length int, ok bool) {
	close := strings.Index(s, "](")
	if close < 0 {
		return "", "", 0, false
	}
	end := strings.IndexByte(s[close+2:], ')')
	if end < 0 {
		return "", "", 0, false
	}
	label = s[1:close]
	url = s[close+2 : close+2+end]
	if strings.ContainsAny(label, "\n") || strings.ContainsAny(url, " \n") {
		return "", "", 0, false
	}
	return label, url, close + 2 + end + 1, true
}

// Plain strips all markers and returns the visible text.
func Plain(input string) string {
	var b strings.Builder
	for _, span := range Parse(input) {
		b.WriteString(span.Text)
	}
	return b.String()
}
