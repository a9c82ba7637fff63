package crossref

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// SciHubURL prefixes a DOI to build the scihub link of a paper.
const SciHubURL = "https://sci-hub.se/"

// millisecondThreshold separates second and millisecond unix timestamps.
const millisecondThreshold = 1_000_000_000_000

// PaperTypes lists the Crossref work types treated as papers.
// See http://api.crossref.org/types.
var PaperTypes = map[string]struct{}{
	"journal-article":     {},
	"book":                {},
	"book-chapter":        {},
	"book-part":           {},
	"book-section":        {},
	"edited-book":         {},
	"proceedings-article": {},
	"reference-book":      {},
	"dissertation":        {},
	"report":              {},
}

// IsPaperType reports whether a work type is kept.
func IsPaperType(t string) bool {
	_, ok := PaperTypes[t]
	return ok
}

// normalizeJournal converts a journal search item. When the plain ISSN list
// repeats its first value, only the first typed ISSN is kept.
func normalizeJournal(item journalItem) feeds.NewJournal {
	issns := item.ISSNType
	if len(item.ISSN) > 1 && len(issns) > 0 {
		for _, v := range item.ISSN[1:] {
			if v == item.ISSN[0] {
				issns = item.ISSNType[:1]
				break
			}
		}
	}
	return feeds.NewJournal{
		Title:            item.Title,
		Publisher:        item.Publisher,
		RecentPaperCount: item.Counts.CurrentDOIs,
		ISSNs:            append([]feeds.ISSN(nil), issns...),
	}
}

// NormalizeWork flattens a Crossref work into PaperMeta.
func NormalizeWork(w Work) (feeds.PaperMeta, error) {
	if strings.TrimSpace(w.DOI) == "" {
		return feeds.PaperMeta{}, fmt.Errorf("work has no DOI")
	}
	author, err := SimplifyAuthors(w.Author)
	if err != nil {
		return feeds.PaperMeta{}, fmt.Errorf("work %s: %w", w.DOI, err)
	}

	meta := feeds.PaperMeta{
		DOI:             w.DOI,
		Title:           joinList(w.Title),
		Subtitle:        joinList(w.Subtitle),
		ShortTitle:      joinList(w.ShortTitle),
		Author:          author,
		Type:            w.Type,
		Abstract:        w.Abstract,
		Publisher:       w.Publisher,
		EditionNumber:   w.EditionNumber,
		Issue:           w.Issue,
		Volume:          w.Volume,
		Page:            w.Page,
		GroupTitle:      w.GroupTitle,
		ReferenceCount:  w.ReferenceCount,
		ReferencesCount: w.ReferencesCount,
		Subject:         strings.Join(w.Subject, ", "),
		URL:             w.URL,
		Source:          w.Source,
		SciHub:          SciHubURL + w.DOI,
	}

	required := []struct {
		name string
		in   *Date
		out  *time.Time
	}{
		{"created", w.Created, &meta.Created},
		{"indexed", w.Indexed, &meta.Indexed},
		{"deposited", w.Deposited, &meta.Deposited},
	}
	for _, r := range required {
		ts, err := ParseDate(r.in)
		if err != nil {
			return feeds.PaperMeta{}, fmt.Errorf("work %s %s: %w", w.DOI, r.name, err)
		}
		if ts == nil {
			return feeds.PaperMeta{}, fmt.Errorf("work %s: missing %s date", w.DOI, r.name)
		}
		*r.out = *ts
	}

	optional := []struct {
		name string
		in   *Date
		out  **time.Time
	}{
		{"posted", w.Posted, &meta.Posted},
		{"published", w.Published, &meta.Published},
		{"issued", w.Issued, &meta.Issued},
		{"accepted", w.Accepted, &meta.Accepted},
		{"content-created", w.ContentCreated, &meta.ContentCreated},
		{"content-updated", w.ContentUpdated, &meta.ContentUpdated},
		{"published-print", w.PublishedPrint, &meta.PublishedPrint},
		{"published-online", w.PublishedOnline, &meta.PublishedOnline},
	}
	for _, o := range optional {
		ts, err := ParseDate(o.in)
		if err != nil {
			return feeds.PaperMeta{}, fmt.Errorf("work %s %s: %w", w.DOI, o.name, err)
		}
		*o.out = ts
	}
	return meta, nil
}

// SimplifyAuthors renders the author list as "Given Family, Name, ...".
func SimplifyAuthors(authors []Author) (string, error) {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.Name != "" {
			names = append(names, a.Name)
			continue
		}
		if a.Sequence != "first" && a.Sequence != "additional" {
			return "", fmt.Errorf("%w: %q", feeds.ErrUnsupportedAuthor, a.Sequence)
		}
		parts := make([]string, 0, 2)
		if a.Given != "" {
			parts = append(parts, a.Given)
		}
		if a.Family != "" {
			parts = append(parts, a.Family)
		}
		names = append(names, strings.Join(parts, " "))
	}
	return strings.Join(names, ", "), nil
}

// ParseDate resolves a Crossref date object. The timestamp wins over
// date-time, which wins over date-parts. A nil date, or date-parts with a
// null year, yields nil.
func ParseDate(d *Date) (*time.Time, error) {
	if d == nil {
		return nil, nil
	}
	if ts, ok, err := parseTimestamp(d.Timestamp); err != nil {
		return nil, err
	} else if ok {
		return &ts, nil
	}
	if d.DateTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, d.DateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: date-time %q", feeds.ErrUnsupportedDate, d.DateTime)
		}
		ts = ts.UTC().Round(time.Microsecond)
		return &ts, nil
	}
	if hasValue(d.DateParts) {
		return parseDateParts(d.DateParts)
	}
	return nil, fmt.Errorf("%w: no timestamp, date-time or date-parts", feeds.ErrUnsupportedDate)
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	if !hasValue(raw) {
		return time.Time{}, false, nil
	}
	var value float64
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		v, err := num.Float64()
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: timestamp %s", feeds.ErrUnsupportedDate, raw)
		}
		value = v
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false, fmt.Errorf("%w: timestamp %s", feeds.ErrUnsupportedDate, raw)
		}
		if s == "" {
			return time.Time{}, false, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: timestamp %q", feeds.ErrUnsupportedDate, s)
		}
		value = v
	}
	if value == 0 {
		return time.Time{}, false, nil
	}

	var micros float64
	if value > millisecondThreshold {
		micros = value * 1e3
	} else {
		micros = value * 1e6
	}
	return time.UnixMicro(int64(math.Round(micros))).UTC(), true, nil
}

func parseDateParts(raw json.RawMessage) (*time.Time, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer) == 0 {
		return nil, fmt.Errorf("%w: date-parts %s", feeds.ErrUnsupportedDate, raw)
	}
	partsRaw := raw
	if first := bytes.TrimSpace(outer[0]); len(first) > 0 && first[0] == '[' {
		partsRaw = first
	}
	var parts []*int
	if err := json.Unmarshal(partsRaw, &parts); err != nil || len(parts) == 0 {
		return nil, fmt.Errorf("%w: date-parts %s", feeds.ErrUnsupportedDate, raw)
	}
	if parts[0] == nil {
		return nil, nil
	}
	year, month, day := *parts[0], 1, 1
	if len(parts) > 1 && parts[1] != nil {
		month = *parts[1]
	}
	if len(parts) > 2 && parts[2] != nil {
		day = *parts[2]
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range parts, e.g. Feb 30 becomes Mar 2.
	if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day {
		return nil, fmt.Errorf("%w: date-parts %s", feeds.ErrUnsupportedDate, raw)
	}
	return &ts, nil
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func joinList(list StringList) string {
	return strings.Join(list, ", ")
}
