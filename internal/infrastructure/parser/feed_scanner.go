package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/scanner"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8"

// FeedScanner reads RSS, Atom and JSON Feed documents.
type FeedScanner struct {
	fetcher fetcher
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires an HTTP client; nil uses a 20s timeout client.
func NewFeedScanner(client *http.Client, userAgent string) *FeedScanner {
	return &FeedScanner{fetcher: newFetcher(client, userAgent)}
}

// Kind identifies the strategy inside the registry.
func (f *FeedScanner) Kind() domain.SourceKind {
	return domain.KindFeed
}

// Scan downloads the feed and converts every entry.
func (f *FeedScanner) Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error) {
	body, err := f.fetcher.get(ctx, source.URL, feedAccept)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source.URL, err)
	}

	items := make([]domain.FetchedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, toFetchedItem(source, feed, it))
	}
	return items, nil
}

func toFetchedItem(source domain.Source, feed *gofeed.Feed, it *gofeed.Item) domain.FetchedItem {
	raw := it.Content
	if strings.TrimSpace(raw) == "" {
		raw = it.Description
	}

	link := it.Link
	if link == "" && len(it.Links) > 0 {
		link = it.Links[0]
	}
	link = resolveLink(feedBase(feed, source.URL), link)

	var published *time.Time
	switch {
	case it.PublishedParsed != nil:
		t := it.PublishedParsed.UTC()
		published = &t
	case it.UpdatedParsed != nil:
		t := it.UpdatedParsed.UTC()
		published = &t
	}

	return domain.FetchedItem{
		Title:       strings.TrimSpace(plainText(it.Title)),
		RawContent:  plainText(raw),
		Link:        link,
		PublishedAt: published,
		ImageURL:    itemImage(it, raw),
		Category:    source.Category,
		SourceID:    source.ID,
	}
}

func feedBase(feed *gofeed.Feed, fallback string) string {
	if feed != nil && feed.Link != "" {
		return feed.Link
	}
	return fallback
}

func itemImage(it *gofeed.Item, raw string) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	return firstImage(raw)
}
