package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls one optional field out of a result container. A missing field is reported with ok=false,
// never with a panic or an error.
type Extractor interface {
	Extract(sel *goquery.Selection) (value string, ok bool)
}

// Text returns the whitespace-collapsed text of the first element matching the selector that has any.
type Text string

func (t Text) Extract(sel *goquery.Selection) (string, bool) {
	var out string
	sel.Find(string(t)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = collapse(s.Text())
		return out == ""
	})
	return out, out != ""
}

// Attr returns the attribute of the first matching element that carries a non-empty value.
type Attr struct {
	Selector string
	Name     string
}

func (a Attr) Extract(sel *goquery.Selection) (string, bool) {
	var out string
	sel.Find(a.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = strings.TrimSpace(s.AttrOr(a.Name, ""))
		return out == ""
	})
	return out, out != ""
}

// FirstOf tries each extractor in order.
type FirstOf []Extractor

func (f FirstOf) Extract(sel *goquery.Selection) (string, bool) {
	for _, e := range f {
		if v, ok := e.Extract(sel); ok {
			return v, true
		}
	}
	return "", false
}

// Mapped post-processes a successful extraction. An empty result counts as missing.
type Mapped struct {
	Extractor Extractor
	Map       func(string) string
}

func (m Mapped) Extract(sel *goquery.Selection) (string, bool) {
	v, ok := m.Extractor.Extract(sel)
	if !ok {
		return "", false
	}
	v = m.Map(v)
	return v, v != ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
