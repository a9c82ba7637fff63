// Package rss renders a journal's papers as an RSS 2.0 feed.
package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rssfeeds "github.com/gorilla/feeds"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

// DefaultItemLimit bounds a feed when the configured limit is unset.
const DefaultItemLimit = 500

// Builder assembles feeds from stored papers.
type Builder struct {
	publicURL string
	itemLimit int
	papers    feeds.PaperStore
}

// New constructs a Builder. publicURL prefixes feed links.
func New(publicURL string, itemLimit int, papers feeds.PaperStore) *Builder {
	if itemLimit <= 0 {
		itemLimit = DefaultItemLimit
	}
	return &Builder{
		publicURL: strings.TrimRight(publicURL, "/"),
		itemLimit: itemLimit,
		papers:    papers,
	}
}

// Build loads the journal's newest papers by creation date into a feed.
func (b *Builder) Build(ctx context.Context, journal feeds.Journal) (*rssfeeds.Feed, error) {
	papers, err := b.papers.RecentPapers(ctx, journal.ID, b.itemLimit)
	if err != nil {
		return nil, fmt.Errorf("load papers for feed %s: %w", journal.PrimaryISSN(), err)
	}

	feed := &rssfeeds.Feed{
		Title:       journal.Title,
		Link:        &rssfeeds.Link{Href: b.FeedURL(journal.PrimaryISSN())},
		Description: description(journal),
		Items:       make([]*rssfeeds.Item, 0, len(papers)),
	}
	if journal.FeedCreated != nil {
		feed.Created = *journal.FeedCreated
	}
	if len(papers) > 0 {
		feed.Updated = papers[0].Created
	}
	for _, p := range papers {
		feed.Items = append(feed.Items, item(p))
	}
	return feed, nil
}

// Render builds the feed and serializes it as RSS 2.0 XML.
func (b *Builder) Render(ctx context.Context, journal feeds.Journal) (string, error) {
	feed, err := b.Build(ctx, journal)
	if err != nil {
		return "", err
	}
	out, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("encode rss for %s: %w", journal.PrimaryISSN(), err)
	}
	return out, nil
}

// FeedURL is the public RSS address for a journal ISSN.
func (b *Builder) FeedURL(issn string) string {
	return b.publicURL + "/journals/" + issn + "/rss"
}

func description(j feeds.Journal) string {
	if j.Publisher == "" {
		return "Recent papers in " + j.Title
	}
	return fmt.Sprintf("Recent papers in %s, published by %s", j.Title, j.Publisher)
}

func item(p feeds.Paper) *rssfeeds.Item {
	it := &rssfeeds.Item{
		Title:       p.Title,
		Description: StripMarkup(p.Abstract),
		Id:          p.DOI,
		Created:     p.Created.In(time.UTC),
	}
	if p.URL != "" {
		it.Link = &rssfeeds.Link{Href: p.URL}
	}
	if p.Author != "" {
		it.Author = &rssfeeds.Author{Name: p.Author}
	}
	return it
}

// StripMarkup reduces a JATS or HTML abstract to plain text with collapsed
// whitespace. The leading "Abstract" heading Crossref often includes is dropped.
func StripMarkup(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("*").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return goquery.NodeName(sel) == "jats:title"
	}).Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
