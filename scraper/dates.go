package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Publication dates outside [minPublishedAt, now+maxFutureSkew] are treated
// as parse accidents and dropped.
var minPublishedAt = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

const maxFutureSkew = 24 * time.Hour

// Polish month names, nominative and genitive, mapped to English so that
// dateparse can read dates like "3 lutego 2024".
var polishMonths = map[string]string{
	"styczeń": "January", "stycznia": "January",
	"luty": "February", "lutego": "February",
	"marzec": "March", "marca": "March",
	"kwiecień": "April", "kwietnia": "April",
	"maj": "May", "maja": "May",
	"czerwiec": "June", "czerwca": "June",
	"lipiec": "July", "lipca": "July",
	"sierpień": "August", "sierpnia": "August",
	"wrzesień": "September", "września": "September",
	"październik": "October", "października": "October",
	"listopad": "November", "listopada": "November",
	"grudzień": "December", "grudnia": "December",
}

// Numeric dates are day-first, as written on Polish sites. The textual
// layouts run after month names are translated.
var dayFirstLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2.01.2006 15:04:05",
	"2.01.2006 15:04",
	"02.01.2006",
	"2.01.2006",
	"2 January 2006 15:04:05",
	"2 January 2006 15:04",
	"2 January 2006",
}

var (
	wordPattern = regexp.MustCompile(`\p{L}+`)

	// A leading weekday name with its separator: "wtorek, 3 kwietnia".
	weekdayPattern = regexp.MustCompile(`(?i)^(?:poniedziałek|wtorek|środa|czwartek|piątek|sobota|niedziela|monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s*,\s*|\s+)`)

	// The separator between date and time: "2024, 10:15" or "2024, godz. 10:15".
	timeSeparatorPattern = regexp.MustCompile(`(?i)(?:,\s*(?:godz\.\s*)?|\s+godz\.\s*)(\d{1,2}:\d{2})`)

	// The year abbreviation in "3 kwietnia 2024 r.".
	yearSuffixPattern = regexp.MustCompile(`(\d{4})\s*r\.`)
)

// findPublishedAt returns the first parseable date among the candidates, or
// nil.
func findPublishedAt(doc *goquery.Document, sel Selectors, now time.Time) *time.Time {
	for _, raw := range dateCandidates(doc, sel.Date) {
		if t, ok := parseDate(raw, sel.DateFormat, now); ok {
			return &t
		}
	}
	return nil
}

// dateCandidates collects raw date strings in priority order: the site's
// date selector, the first <time>, the article:published_time meta tag, and
// the paragraph following an author link.
func dateCandidates(doc *goquery.Document, selector string) []string {
	var out []string
	add := func(s *goquery.Selection) {
		if s == nil || s.Length() == 0 {
			return
		}
		for _, attr := range []string{"datetime", "content"} {
			if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
				out = append(out, v)
			}
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			out = append(out, text)
		}
	}

	if selector != "" {
		add(doc.Find(selector).First())
	}
	add(doc.Find("time").First())
	add(doc.Find(`meta[property="article:published_time"]`).First())
	if author := doc.Find(`a[href^="/autorzy/"]`).First(); author.Length() > 0 {
		add(nextParagraph(author))
	}

	return out
}

// nextParagraph finds the first <p> after s in document order, looking at
// following siblings of s and of each of its ancestors.
func nextParagraph(s *goquery.Selection) *goquery.Selection {
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		var found *goquery.Selection
		cur.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			if goquery.NodeName(sib) == "p" {
				found = sib
				return false
			}
			if p := sib.Find("p").First(); p.Length() > 0 {
				found = p
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// parseDate parses raw with layout when one is configured, then with the
// day-first layouts, and finally with dateparse. The result is in UTC.
func parseDate(raw, layout string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if layout != "" {
		if t, err := time.Parse(layout, raw); err == nil {
			return inPublishWindow(t.UTC(), now)
		}
	}

	cleaned := cleanDate(raw)
	for _, l := range dayFirstLayouts {
		if t, err := time.Parse(l, cleaned); err == nil {
			return inPublishWindow(t.UTC(), now)
		}
	}

	t, err := dateparse.ParseAny(cleaned, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	return inPublishWindow(t.UTC(), now)
}

// cleanDate drops a leading weekday, the year suffix and the comma before
// the time, and translates Polish month names.
func cleanDate(s string) string {
	s = weekdayPattern.ReplaceAllString(s, "")
	s = yearSuffixPattern.ReplaceAllString(s, "$1")
	s = timeSeparatorPattern.ReplaceAllString(s, " $1")
	return strings.TrimSpace(translateMonths(s))
}

func inPublishWindow(t, now time.Time) (time.Time, bool) {
	if t.Before(minPublishedAt) || t.After(now.Add(maxFutureSkew)) {
		return time.Time{}, false
	}
	return t, true
}

func translateMonths(s string) string {
	return wordPattern.ReplaceAllStringFunc(s, func(word string) string {
		if en, ok := polishMonths[strings.ToLower(word)]; ok {
			return en
		}
		return word
	})
}
