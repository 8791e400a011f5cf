package browser

import (
	"net/url"
	"strings"

	"github.com/IliaW/lead-scrape-worker/internal/model"
)

const resultsPerScroll = 10

// BuildSearchURL embeds the query text and the optional location and company filters into the people search url.
func BuildSearchURL(base, query string, filters model.SearchFilters) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set("keywords", strings.TrimSpace(query))
	if loc := strings.TrimSpace(filters.Location); loc != "" {
		params.Set("geoUrn", loc)
	}
	if company := strings.TrimSpace(filters.Company); company != "" {
		params.Set("currentCompany", company)
	}
	u.RawQuery = strings.ReplaceAll(params.Encode(), "+", "%20")

	return u.String(), nil
}

// ScrollCount is the number of scroll-and-wait cycles needed to load maxResults, bounded by scrollCap.
func ScrollCount(maxResults, scrollCap int) int {
	return max(0, min(scrollCap, maxResults/resultsPerScroll))
}
