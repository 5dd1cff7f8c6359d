package probe

import (
	"regexp"
	"sort"
	"strings"
)

// Locator is a DOM query, either an XPath expression or a CSS selector.
type Locator struct {
	By    string // "xpath" or "css"
	Value string
}

// Swiggy locator tables. Class names on these pages are minified and churn,
// so the queries lean on visible text and fuzzy class fragments.
var swiggyStatusLocs = []Locator{
	{"xpath", "//*[contains(translate(., 'CLOSED', 'closed'), 'closed')]"},
	{"xpath", "//*[contains(translate(., 'NOT ACCEPTING', 'not accepting'), 'not accepting')]"},
	{"xpath", "//*[contains(translate(., 'OPENS AT', 'opens at'), 'opens at')]"},
	{"xpath", "//*[contains(., 'Currently unavailable')]"},
	{"xpath", "//*[contains(., 'Unavailable in your area')]"},
	{"css", "[class*='status'], [class*='badge'], [class*='banner']"},
}

var swiggyETALocs = []Locator{
	{"xpath", "//*[contains(translate(., 'MINS', 'mins'), 'mins')]//span"},
	{"xpath", "//span[contains(translate(., 'MINS', 'mins'), 'mins')]"},
	{"css", "[class*='minute'], [class*='mins'], [class*='eta'], [class*='delivery']"},
}

var swiggySoldOutLocs = []Locator{
	{"xpath", "//*[contains(translate(., 'SOLD OUT', 'sold out'), 'sold out')]"},
	{"xpath", "//*[contains(translate(., 'UNAVAILABLE', 'unavailable'), 'unavailable')]"},
}

// Zomato locator tables.
var zomatoStatusLocs = []Locator{
	{"xpath", "//*[contains(translate(., 'CLOSED', 'closed'), 'closed')]"},
	{"xpath", "//*[contains(translate(., 'OPENS AT', 'opens at'), 'opens at')]"},
	{"xpath", "//*[contains(translate(., 'NOT ACCEPTING', 'not accepting'), 'not accepting')]"},
	{"xpath", "//*[contains(., 'Temporarily closed')]"},
	{"xpath", "//*[contains(., 'Currently not accepting orders')]"},
}

var zomatoETALocs = []Locator{
	{"xpath", "//*[contains(translate(., 'MINS', 'mins'), 'mins')]"},
	{"css", "[class*='minute'], [class*='mins'], [class*='time'], [class*='eta']"},
}

var etaPat = regexp.MustCompile(`(?i)\b(\d+)\s*(?:–|-|to)?\s*(\d+)?\s*mins?\b`)

var opensAtPat = regexp.MustCompile(`opens?\s+at\s+([0-9:\sapm\.]+)`)

// ParseETA pulls the delivery estimate out of the extracted texts. The
// shortest hit wins: pages repeat the estimate inside longer marketing copy
// and the bare "23-30 mins" form is the one we want.
func ParseETA(texts []string) string {
	var hits []string
	for _, t := range texts {
		for _, m := range etaPat.FindAllString(t, -1) {
			hits = append(hits, strings.TrimSpace(m))
		}
	}
	if len(hits) == 0 {
		joined := strings.Join(texts, " | ")
		for _, m := range etaPat.FindAllString(joined, -1) {
			hits = append(hits, strings.TrimSpace(m))
		}
	}
	if len(hits) == 0 {
		return ""
	}
	sort.SliceStable(hits, func(i, j int) bool { return len(hits[i]) < len(hits[j]) })
	return hits[0]
}

// InferStatus maps page text to a compact availability status. Closed beats
// not-accepting beats opens-at; anything else counts as available.
func InferStatus(texts []string) string {
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		lowered = append(lowered, strings.ToLower(t))
	}
	j := strings.Join(lowered, " | ")
	if strings.Contains(j, "temporarily closed") || strings.Contains(j, "closed") {
		return "Closed"
	}
	if strings.Contains(j, "not accepting") || strings.Contains(j, "currently not accepting") {
		return "Not accepting orders"
	}
	if m := opensAtPat.FindStringSubmatch(j); m != nil {
		return "Opens at " + strings.TrimSpace(m[1])
	}
	return "Available"
}

// originOf extracts the scheme://host origin used for the geolocation
// permission grant.
func originOf(url string) string {
	if strings.HasPrefix(url, "http") {
		parts := strings.Split(url, "/")
		if len(parts) > 2 {
			return parts[0] + "//" + parts[2]
		}
	}
	return "https://www.swiggy.com"
}

// normalizeURL prefixes a scheme when the sheet cell holds a bare host/path.
func normalizeURL(url string) string {
	if strings.HasPrefix(url, "http") {
		return url
	}
	return "https://" + strings.TrimLeft(url, "/")
}
