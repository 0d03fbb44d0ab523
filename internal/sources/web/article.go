package web

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/retrieval"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// article is the data extracted from one <article> element.
type article struct {
	id        string
	title     string
	link      string
	text      string
	html      string
	author    string
	published string
	tags      []string
	images    []core.MediaItem
}

func extractRecords(doc *goquery.Document, base *url.URL) []retrieval.Record {
	var records []retrieval.Record
	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		// Nested articles (e.g. comments) belong to their parent.
		if sel.ParentsFiltered("article").Length() > 0 {
			return
		}
		records = append(records, extractArticle(sel, base))
	})
	if len(records) == 0 {
		if page, ok := extractPage(doc, base); ok {
			records = append(records, page)
		}
	}
	return records
}

func extractArticle(sel *goquery.Selection, base *url.URL) article {
	a := article{
		title:  collapse(sel.Find("h1, h2, h3").First().Text()),
		author: collapse(sel.Find(`[rel="author"], .author, [itemprop="author"]`).First().Text()),
		text:   collapse(sel.Text()),
	}
	a.html, _ = goquery.OuterHtml(sel)

	heading := sel.Find("h1 a[href], h2 a[href], h3 a[href]").First()
	if heading.Length() == 0 {
		heading = sel.Find("a[href]").First()
	}
	if href, ok := heading.Attr("href"); ok {
		a.link = resolve(base, href)
	}
	if id, ok := sel.Attr("id"); ok && strings.TrimSpace(id) != "" && base != nil {
		anchored := *base
		anchored.Fragment = strings.TrimSpace(id)
		a.id = anchored.String()
	}
	if a.id == "" {
		a.id = a.link
	}
	if a.link == "" && a.id != "" {
		a.link = a.id
	}

	if datetime, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
		a.published = datetime
	} else if content, ok := sel.Find(`[itemprop="datePublished"]`).First().Attr("content"); ok {
		a.published = content
	}

	sel.Find(`a[rel~="tag"]`).Each(func(_ int, tag *goquery.Selection) {
		if name := collapse(tag.Text()); name != "" {
			a.tags = append(a.tags, name)
		}
	})
	a.images = extractImages(sel, base)
	return a
}

// extractPage treats a page without <article> elements as a single article when
// it declares a publication time.
func extractPage(doc *goquery.Document, base *url.URL) (article, bool) {
	published, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content")
	if !ok || base == nil {
		return article{}, false
	}
	link := base.String()
	if canonical, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if resolved := resolve(base, canonical); resolved != "" {
			link = resolved
		}
	}
	title, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	author, _ := doc.Find(`meta[name="author"]`).First().Attr("content")
	body := doc.Find("body")
	html, _ := goquery.OuterHtml(body)
	a := article{
		id:        link,
		title:     collapse(title),
		link:      link,
		text:      collapse(body.Text()),
		html:      html,
		author:    collapse(author),
		published: published,
		images:    extractImages(body, base),
	}
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, tag *goquery.Selection) {
		if name, ok := tag.Attr("content"); ok && strings.TrimSpace(name) != "" {
			a.tags = append(a.tags, strings.TrimSpace(name))
		}
	})
	return a, true
}

func extractImages(sel *goquery.Selection, base *url.URL) []core.MediaItem {
	seen := map[string]bool{}
	var media []core.MediaItem
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if strings.TrimSpace(src) == "" {
			src, _ = img.Attr("data-src")
		}
		resolved := resolve(base, src)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		alt, _ := img.Attr("alt")
		media = append(media, core.MediaItem{ID: resolved, URL: resolved, Type: core.MediaImage, Title: collapse(alt)})
	})
	sel.Find("video source[src], video[src]").Each(func(_ int, video *goquery.Selection) {
		src, _ := video.Attr("src")
		resolved := resolve(base, src)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		media = append(media, core.MediaItem{ID: resolved, URL: resolved, Type: core.MediaVideo})
	})
	return media
}

func (a article) Normalize() (*core.Item, error) {
	if a.id == "" {
		return nil, retrieval.Malformed("", "article has no link or id")
	}
	if strings.TrimSpace(a.published) == "" {
		return nil, retrieval.Malformed(a.id, "article has no publication time")
	}
	published, err := parseTime(a.published)
	if err != nil {
		return nil, retrieval.Malformed(a.id, "publication time %q: %v", a.published, err)
	}
	return &core.Item{
		ID:              a.id,
		Source:          Network,
		Title:           a.title,
		Text:            a.text,
		HTML:            a.html,
		URL:             a.link,
		PublicationTime: published,
		UserID:          a.author,
		Tags:            a.tags,
		Media:           a.images,
	}, nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
