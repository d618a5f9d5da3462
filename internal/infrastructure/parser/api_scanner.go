package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/scanner"
)

// Metadata keys understood by the api strategy. Values are gjson paths relative to an item.
const (
	MetaItemsPath    = "itemsPath"
	MetaTitleField   = "titleField"
	MetaLinkField    = "linkField"
	MetaContentField = "contentField"
	MetaDateField    = "dateField"
	MetaImageField   = "imageField"
)

// APIScanner reads JSON endpoints whose item layout is described in source metadata.
type APIScanner struct {
	fetcher fetcher
}

var _ scanner.Scanner = (*APIScanner)(nil)

// NewAPIScanner wires an HTTP client; nil uses a 20s timeout client.
func NewAPIScanner(client *http.Client, userAgent string) *APIScanner {
	return &APIScanner{fetcher: newFetcher(client, userAgent)}
}

// Kind identifies the strategy inside the registry.
func (a *APIScanner) Kind() domain.SourceKind {
	return domain.KindAPI
}

// Scan downloads the JSON document and maps every element of the items array.
func (a *APIScanner) Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error) {
	body, err := a.fetcher.get(ctx, source.URL, "application/json")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse api %s: invalid json", source.URL)
	}

	itemsPath := source.Meta(MetaItemsPath, "items")
	list := gjson.GetBytes(body, itemsPath)
	if !list.Exists() {
		if root := gjson.ParseBytes(body); root.IsArray() {
			list = root
		} else {
			return nil, fmt.Errorf("parse api %s: no array at %q", source.URL, itemsPath)
		}
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("parse api %s: %q is not an array", source.URL, itemsPath)
	}

	var (
		titleField   = source.Meta(MetaTitleField, "title")
		linkField    = source.Meta(MetaLinkField, "url")
		contentField = source.Meta(MetaContentField, "content")
		dateField    = source.Meta(MetaDateField, "published_at")
		imageField   = source.Meta(MetaImageField, "image")
	)

	var items []domain.FetchedItem
	list.ForEach(func(_, entry gjson.Result) bool {
		title := strings.TrimSpace(entry.Get(titleField).String())
		link := resolveLink(source.URL, entry.Get(linkField).String())
		if title == "" || link == "" {
			return true
		}

		image := entry.Get(imageField).String()
		if image != "" {
			image = resolveLink(source.URL, image)
		}

		items = append(items, domain.FetchedItem{
			Title:       title,
			RawContent:  plainText(entry.Get(contentField).String()),
			Link:        link,
			PublishedAt: parseDate(entry.Get(dateField).String()),
			ImageURL:    image,
			Category:    source.Category,
			SourceID:    source.ID,
		})
		return true
	})

	return items, nil
}
