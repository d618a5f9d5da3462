package domain

import "time"

// FetchedItem is a raw feed entry on its way to the content transformer.
type FetchedItem struct {
	Title       string
	RawContent  string
	Link        string
	PublishedAt *time.Time
	ImageURL    string
	Category    Category
	SourceID    string
}

// StyleProfile describes the voice a category's content is rewritten in.
type StyleProfile struct {
	Category    Category
	Description string
	Audience    string
	Voice       string
}

// TransformRequest is the input of the external content transformer.
type TransformRequest struct {
	Title   string
	Content string
	Link    string
	Style   StyleProfile
}

// TransformedContent is the rewritten title/content/summary triple.
type TransformedContent struct {
	Title   string
	Content string
	Summary string
}

// ArticleStatus enumerates persisted record states.
type ArticleStatus string

const (
	ArticlePublished ArticleStatus = "published"
	ArticleDraft     ArticleStatus = "draft"
)

// StoredArticle is the durable output of the ingestion pipeline.
type StoredArticle struct {
	ID          string
	Title       string
	Body        string
	Summary     string
	Category    Category
	SourceID    string
	SourceLink  string
	ImageURL    string
	PublishedAt *time.Time
	Status      ArticleStatus
	CreatedAt   time.Time
}
