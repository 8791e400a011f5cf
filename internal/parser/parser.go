package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/PuerkitoBio/goquery"
)

const profileBaseURL = "https://www.linkedin.com"

type field struct {
	name string
	ex   Extractor
	set  func(*model.Candidate, string)
}

// Parser turns rendered search result markup into candidates. It performs no I/O.
type Parser struct {
	layouts []string
	fields  []field
	log     *slog.Logger
}

func New(log *slog.Logger) *Parser {
	nameLinks := []string{"a.app-aware-link", `a[href*="/in/"]`}

	return &Parser{
		layouts: []string{
			"div.entity-result__item",
			"li.reusable-search__result-container",
		},
		fields: []field{
			{"name", FirstOf{Text(nameLinks[0]), Text(nameLinks[1])},
				func(c *model.Candidate, v string) { c.Name = v }},
			{"profile_url", Mapped{
				Extractor: FirstOf{Attr{nameLinks[0], "href"}, Attr{nameLinks[1], "href"}},
				Map:       NormalizeProfileURL,
			}, func(c *model.Candidate, v string) { c.ProfileURL = v }},
			{"role", FirstOf{Text("div.entity-result__primary-subtitle"), Text("div.entity-result__summary")},
				func(c *model.Candidate, v string) { c.Role = v }},
			{"company", Text("div.entity-result__secondary-subtitle"),
				func(c *model.Candidate, v string) { c.Company = v }},
			{"location", Text("div.entity-result__location"),
				func(c *model.Candidate, v string) { c.Location = v }},
			{"profile_image_url", Attr{"img.presence-entity__image", "src"},
				func(c *model.Candidate, v string) { c.ProfileImageURL = v }},
		},
		log: log,
	}
}

// Parse returns candidates in page order. Containers are taken from the first layout that matches anything;
// entries without a name are dropped, and a failing entry never stops the others.
func (p *Parser) Parse(markup string) ([]model.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse results markup: %w", err)
	}

	containers := p.containers(doc)
	p.log.Info("found prospect containers.", slog.Int("count", containers.Length()))

	candidates := make([]model.Candidate, 0, containers.Length())
	containers.Each(func(i int, s *goquery.Selection) {
		c, ok := p.build(i, s)
		if ok {
			candidates = append(candidates, c)
		}
	})

	return candidates, nil
}

func (p *Parser) containers(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	for _, layout := range p.layouts {
		found = doc.Find(layout)
		if found.Length() > 0 {
			return found
		}
	}
	return found
}

func (p *Parser) build(idx int, s *goquery.Selection) (c model.Candidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("failed to parse prospect container.", slog.Int("index", idx), slog.Any("err", r))
			ok = false
		}
	}()

	for _, f := range p.fields {
		if v, found := f.ex.Extract(s); found {
			f.set(&c, v)
		}
	}
	if c.Name == "" {
		p.log.Debug("skipping prospect without a name.", slog.Int("index", idx))
		return c, false
	}

	return c, true
}

// NormalizeProfileURL drops the query string and makes relative profile paths absolute.
func NormalizeProfileURL(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return ""
	}
	if !strings.HasPrefix(href, "http") {
		if !strings.HasPrefix(href, "/") {
			href = "/" + href
		}
		href = profileBaseURL + href
	}
	return href
}
