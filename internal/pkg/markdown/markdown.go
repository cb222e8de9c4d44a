package markdown

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in markdown is escaped; the renderer is not configured WithUnsafe.
var engine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var (
	imageTagRegex   = regexp.MustCompile(`(?i)<img\s`)
	htmlTagRegex    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Render converts markdown to HTML. Images are marked for lazy loading.
func Render(source string) (string, error) {
	text := strings.TrimSpace(source)
	if text == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := engine.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return imageTagRegex.ReplaceAllString(buf.String(), `<img loading="lazy" `), nil
}

// PlainText renders markdown and strips the markup, collapsing whitespace.
func PlainText(source string) string {
	rendered, err := Render(source)
	if err != nil {
		rendered = source
	}
	stripped := htmlTagRegex.ReplaceAllString(rendered, " ")
	stripped = html.UnescapeString(stripped)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(stripped, " "))
}

// Excerpt returns at most maxRunes runes of plain text, cut on a word
// boundary with an ellipsis when truncated.
func Excerpt(source string, maxRunes int) string {
	text := PlainText(source)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// ReadingMinutes estimates reading time at 200 words per minute, minimum 1.
func ReadingMinutes(source string) int {
	words := len(strings.Fields(PlainText(source)))
	minutes := (words + 199) / 200
	if minutes < 1 {
		return 1
	}
	return minutes
}
