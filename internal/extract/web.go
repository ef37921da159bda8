package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	webFetchTimeout = 15 * time.Second
	// browserUserAgent avoids the trivial bot blocks that reject default
	// Go client user agents.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// minWebContentLength is the smallest visible-text size treated as a
	// real page. Anything shorter is a blocked or empty page.
	minWebContentLength = 50

	fallbackWebTitle = "Web Page"
)

type webFetcher struct {
	client *http.Client
}

func newWebFetcher() *webFetcher {
	return &webFetcher{client: &http.Client{Timeout: webFetchTimeout}}
}

func (w *webFetcher) extract(ctx context.Context, url string) ([]DocumentUnit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, extractionErr(KindWeb, "invalid URL", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, extractionErr(KindWeb, "failed to fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, extractionErr(KindWeb, fmt.Sprintf("page returned status %s", resp.Status), nil)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, extractionErr(KindWeb, "failed to parse HTML", err)
	}

	title, content := visibleText(doc)
	if title == "" {
		title = fallbackWebTitle
	}
	if utf8.RuneCountInString(content) < minWebContentLength {
		return nil, extractionErr(KindWeb, "page has too little visible text (blocked or empty)", nil)
	}

	return []DocumentUnit{{
		Content:    content,
		SourceKind: KindWeb,
		SourceURI:  url,
		Title:      title,
		Extra:      map[string]string{},
	}}, nil
}

// skippedElements are dropped entirely: they never contain body prose.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"svg":      true,
	"iframe":   true,
}

// visibleText walks the parsed tree and returns (title, text). The title
// comes from <title>, falling back to an Open Graph title meta tag.
func visibleText(doc *html.Node) (string, string) {
	var title, ogTitle string
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.Data] {
				return
			}
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "meta":
				var property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property", "name":
						property = attr.Val
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && content != "" {
					ogTitle = strings.TrimSpace(content)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if title == "" {
		title = ogTitle
	}
	return title, sb.String()
}
