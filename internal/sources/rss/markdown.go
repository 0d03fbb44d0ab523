package rss

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var (
	markdownOnce sync.Once
	markdownConv *converter.Converter
)

func markdownConverter() *converter.Converter {
	markdownOnce.Do(func() {
		markdownConv = converter.NewConverter(
			converter.WithEscapeMode("smart"),
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
	})
	return markdownConv
}

// ConvertHTMLToMarkdown renders an entry body as markdown text.
func ConvertHTMLToMarkdown(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	// Plain text is returned as is so it is not escaped.
	if !strings.Contains(html, "<") {
		return strings.TrimSpace(html), nil
	}

	md, err := markdownConverter().ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
