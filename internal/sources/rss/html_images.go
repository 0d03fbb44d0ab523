package rss

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/bakkerme/curator-streams/internal/core"
)

// ExtractImagesFromHTML collects the <img> tags of an entry body as image media.
// Relative sources are resolved against baseURL. Images embedded as data: URIs
// cannot be referenced by URL, so they are stripped from the returned HTML and
// not reported.
func ExtractImagesFromHTML(htmlText string, baseURL string) (string, []core.MediaItem, error) {
	if htmlText == "" {
		return "", nil, nil
	}
	if !strings.Contains(strings.ToLower(htmlText), "<img") {
		return htmlText, nil, nil
	}

	// Parse as fragment so this works on partial HTML from RSS feeds.
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(htmlText), root)
	if err != nil {
		return htmlText, nil, fmt.Errorf("failed to parse html fragment: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	base, _ := url.Parse(baseURL)
	seen := map[string]bool{}
	var media []core.MediaItem
	scrubbed := false

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			src := firstNonEmpty(attrValue(n, "src"), attrValue(n, "data-src"), attrValue(n, "data-original"), attrValue(n, "data-lazy-src"))
			if isDataURI(src) {
				for _, key := range []string{"src", "data-src", "data-original", "data-lazy-src", "srcset"} {
					removeAttr(n, key)
				}
				scrubbed = true
			} else if resolved := resolve(base, src); resolved != "" && !seen[resolved] {
				seen[resolved] = true
				media = append(media, core.MediaItem{
					ID:    resolved,
					URL:   resolved,
					Type:  core.MediaImage,
					Title: strings.TrimSpace(attrValue(n, "alt")),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if !scrubbed {
		return htmlText, media, nil
	}
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return strings.TrimSpace(buf.String()), media, nil
}

func isDataURI(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "data:")
}

func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
