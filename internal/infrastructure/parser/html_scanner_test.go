package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FeedSentinel/internal/domain"
)

func TestResolveLink(t *testing.T) {
	t.Parallel()

	got := resolveLink("https://example.com/travel/list", "/stories/1")
	if got != "https://example.com/stories/1" {
		t.Fatalf("unexpected link: %s", got)
	}

	got = resolveLink("https://example.com/travel/list", "https://cdn.example.org/x")
	if got != "https://cdn.example.org/x" {
		t.Fatalf("absolute link rewritten: %s", got)
	}

	if got := resolveLink("https://example.com", "  "); got != "" {
		t.Fatalf("expected empty link, got %s", got)
	}
}

func TestParseCard(t *testing.T) {
	t.Parallel()

	html := `
	<div class="grid">
	  <article class="card">
	    <h2>Sample   Title</h2>
	    <a href="/stories/sample">Read</a>
	    <time>Date: 8 Nov 2025</time>
	    <p>Sample summary text.</p>
	    <img data-src="/img/sample.jpg">
	  </article>
	</div>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	src := domain.Source{ID: "travel-sample", URL: "https://example.com/travel", Category: domain.CategoryTravel}
	item, ok := parseCard(doc.Find("article").First(), selectorsFor(src), src)
	if !ok {
		t.Fatalf("parseCard rejected a valid card")
	}

	if item.Title != "Sample Title" {
		t.Fatalf("unexpected title: %s", item.Title)
	}
	if item.Link != "https://example.com/stories/sample" {
		t.Fatalf("unexpected link: %s", item.Link)
	}
	if item.RawContent != "Sample summary text." {
		t.Fatalf("unexpected content: %s", item.RawContent)
	}
	if item.ImageURL != "https://example.com/img/sample.jpg" {
		t.Fatalf("unexpected image: %s", item.ImageURL)
	}
	if item.SourceID != "travel-sample" || item.Category != domain.CategoryTravel {
		t.Fatalf("unexpected attribution: %s/%s", item.Category, item.SourceID)
	}

	wantDate := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if item.PublishedAt == nil || item.PublishedAt.Format("2006-01-02") != wantDate.Format("2006-01-02") {
		t.Fatalf("unexpected published date: %v", item.PublishedAt)
	}
}

func TestHTMLScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "Mozilla") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`
		<ul>
		  <li class="post"><a class="t" href="/a">First story</a><span class="d" datetime="2026-10-01">x</span></li>
		  <li class="post"><a class="t" href="/b">Second story</a></li>
		  <li class="post"><a class="t" href="/a">First story again</a></li>
		  <li class="post"><span>No link here</span></li>
		</ul>`))
	}))
	defer server.Close()

	sc := NewHTMLScanner(server.Client(), "")
	src := domain.Source{
		ID:       "food-list",
		URL:      server.URL + "/list",
		Category: domain.CategoryFood,
		Kind:     domain.KindScrape,
		Metadata: map[string]string{
			MetaItemSelector:  "li.post",
			MetaTitleSelector: "a.t",
			MetaLinkSelector:  "a.t",
			MetaDateSelector:  "span.d",
		},
	}

	items, err := sc.Scan(context.Background(), src)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Link != server.URL+"/a" {
		t.Fatalf("unexpected link: %s", items[0].Link)
	}
	if items[0].PublishedAt == nil || items[0].PublishedAt.Day() != 1 {
		t.Fatalf("unexpected date: %v", items[0].PublishedAt)
	}
	if items[1].PublishedAt != nil {
		t.Fatalf("expected no date for second item")
	}
}
