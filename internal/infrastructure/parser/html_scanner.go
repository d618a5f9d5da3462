package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/scanner"
)

// Metadata keys understood by the scrape strategy.
const (
	MetaItemSelector    = "itemSelector"
	MetaTitleSelector   = "titleSelector"
	MetaLinkSelector    = "linkSelector"
	MetaSummarySelector = "summarySelector"
	MetaImageSelector   = "imageSelector"
	MetaDateSelector    = "dateSelector"
)

// HTMLScanner extracts article cards from listing pages for sources without a feed.
type HTMLScanner struct {
	fetcher fetcher
}

var _ scanner.Scanner = (*HTMLScanner)(nil)

// NewHTMLScanner wires an HTTP client; nil uses a 20s timeout client.
func NewHTMLScanner(client *http.Client, userAgent string) *HTMLScanner {
	return &HTMLScanner{fetcher: newFetcher(client, userAgent)}
}

// Kind identifies the strategy inside the registry.
func (h *HTMLScanner) Kind() domain.SourceKind {
	return domain.KindScrape
}

// Scan fetches the listing page and returns one item per matched card.
func (h *HTMLScanner) Scan(ctx context.Context, source domain.Source) ([]domain.FetchedItem, error) {
	body, err := h.fetcher.get(ctx, source.URL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return extractCards(doc, source), nil
}

type cardSelectors struct {
	item, title, link, summary, image, date string
}

func selectorsFor(source domain.Source) cardSelectors {
	return cardSelectors{
		item:    source.Meta(MetaItemSelector, "article"),
		title:   source.Meta(MetaTitleSelector, "h1, h2, h3"),
		link:    source.Meta(MetaLinkSelector, "a[href]"),
		summary: source.Meta(MetaSummarySelector, "p"),
		image:   source.Meta(MetaImageSelector, "img"),
		date:    source.Meta(MetaDateSelector, "time"),
	}
}

func extractCards(doc *goquery.Document, source domain.Source) []domain.FetchedItem {
	sel := selectorsFor(source)
	seen := map[string]struct{}{}
	var items []domain.FetchedItem

	doc.Find(sel.item).Each(func(_ int, card *goquery.Selection) {
		item, ok := parseCard(card, sel, source)
		if !ok {
			return
		}
		if _, dup := seen[item.Link]; dup {
			return
		}
		seen[item.Link] = struct{}{}
		items = append(items, item)
	})

	return items
}

func parseCard(card *goquery.Selection, sel cardSelectors, source domain.Source) (domain.FetchedItem, bool) {
	title := strings.TrimSpace(card.Find(sel.title).First().Text())

	linkNode := card.Find(sel.link).First()
	if goquery.NodeName(card) == "a" {
		linkNode = card
	}
	href, _ := linkNode.Attr("href")
	link := resolveLink(source.URL, href)

	if title == "" {
		title = strings.TrimSpace(linkNode.Text())
	}
	if title == "" || link == "" {
		return domain.FetchedItem{}, false
	}

	var summary []string
	card.Find(sel.summary).Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			summary = append(summary, text)
		}
	})

	dateNode := card.Find(sel.date).First()
	dateText, ok := dateNode.Attr("datetime")
	if !ok {
		dateText = dateNode.Text()
	}

	image := imageSource(card.Find(sel.image).First())
	if image != "" {
		image = resolveLink(source.URL, image)
	}

	return domain.FetchedItem{
		Title:       strings.Join(strings.Fields(title), " "),
		RawContent:  strings.Join(strings.Fields(strings.Join(summary, "\n")), " "),
		Link:        link,
		PublishedAt: parseDate(dateText),
		ImageURL:    image,
		Category:    source.Category,
		SourceID:    source.ID,
	}, true
}
