// Package extract turns a rendered listing document into a Property record.
//
// The rules run against the Document capability rather than a live browser,
// so the whole engine is testable with static HTML fixtures.
package extract

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is the minimal query surface the field rules need: query one
// element, query all elements, read text or an attribute.
type Document interface {
	// Text returns the trimmed text of the first element matching selector,
	// or "" when nothing matches.
	Text(selector string) string

	// Texts returns the trimmed text of every matching element, empty
	// strings dropped, in document order.
	Texts(selector string) []string

	// Each visits every matching element in document order.
	Each(selector string, fn func(el Element))
}

// Element is one matched node.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
}

// FromHTML parses raw HTML into a goquery-backed Document.
func FromHTML(rawHTML string) (Document, error) {
	node, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	return &htmlDocument{doc: goquery.NewDocumentFromNode(node)}, nil
}

// The rule table uses a fixed set of selectors; compile each once and reuse
// the cascadia matcher across documents.
var (
	selMu    sync.RWMutex
	selCache = map[string]cascadia.Selector{}
)

func compiled(selector string) cascadia.Selector {
	selMu.RLock()
	sel, ok := selCache[selector]
	selMu.RUnlock()
	if ok {
		return sel
	}

	sel = cascadia.MustCompile(selector)
	selMu.Lock()
	selCache[selector] = sel
	selMu.Unlock()
	return sel
}

type htmlDocument struct {
	doc *goquery.Document
}

func (d *htmlDocument) Text(selector string) string {
	return strings.TrimSpace(d.doc.FindMatcher(compiled(selector)).First().Text())
}

func (d *htmlDocument) Texts(selector string) []string {
	var out []string
	d.doc.FindMatcher(compiled(selector)).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

func (d *htmlDocument) Each(selector string, fn func(el Element)) {
	d.doc.FindMatcher(compiled(selector)).Each(func(_ int, s *goquery.Selection) {
		fn(htmlElement{sel: s})
	})
}

type htmlElement struct {
	sel *goquery.Selection
}

func (e htmlElement) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func (e htmlElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}
