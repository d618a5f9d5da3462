package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultReliableThreshold is the item count a feed needs to be considered reliable and the
// number of healthy sources a category needs to be considered covered.
const DefaultReliableThreshold = 3

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownKind     = errors.New("unknown source kind")
	ErrSourceNotFound  = errors.New("source not found")
)

// Category is one of the fixed content categories sources are grouped by.
type Category string

const (
	CategoryBeauty    Category = "beauty"
	CategoryFashion   Category = "fashion"
	CategoryTravel    Category = "travel"
	CategoryWellness  Category = "wellness"
	CategoryFood      Category = "food"
	CategoryCulture   Category = "culture"
	CategoryLifestyle Category = "lifestyle"
)

var categories = []Category{
	CategoryBeauty,
	CategoryFashion,
	CategoryTravel,
	CategoryWellness,
	CategoryFood,
	CategoryCulture,
	CategoryLifestyle,
}

// Categories returns the known categories in their canonical order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory validates a user supplied category name.
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
	}
	return c, nil
}

// Valid reports whether the category belongs to the enumerated set.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Rank orders categories canonically; unknown values sort last.
func (c Category) Rank() int {
	for i, known := range categories {
		if c == known {
			return i
		}
	}
	return len(categories)
}

// SourceKind describes how a source is fetched.
type SourceKind string

const (
	KindFeed   SourceKind = "feed"
	KindAPI    SourceKind = "api"
	KindScrape SourceKind = "scrape"
)

// ParseKind validates a source kind; empty means feed.
func ParseKind(value string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(value))); k {
	case "":
		return KindFeed, nil
	case KindFeed, KindAPI, KindScrape:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// Origin records how a source entered the registry.
type Origin string

const (
	OriginSeed      Origin = "seed"
	OriginFallback  Origin = "fallback"
	OriginDiscovery Origin = "discovery"
)

// Source is a configured external feed belonging to a category.
type Source struct {
	ID                 string
	Name               string
	URL                string
	Category           Category
	Kind               SourceKind
	Active             bool
	FetchFrequency     time.Duration
	Metadata           map[string]string
	Origin             Origin
	AddedAt            time.Time
	DeactivatedAt      *time.Time
	DeactivationReason string
	Notes              []string
}

// Annotate appends a dated audit note.
func (s *Source) Annotate(at time.Time, note string) {
	s.Notes = append(s.Notes, fmt.Sprintf("%s: %s", at.UTC().Format("2006-01-02"), note))
}

// Meta returns a metadata value or the fallback when absent.
func (s Source) Meta(key, fallback string) string {
	if v, ok := s.Metadata[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// NormalizeURL canonicalises a URL for collision checks.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

// Slug turns free text into a lower-case dash separated identifier.
func Slug(parts ...string) string {
	var b strings.Builder
	dash := false
	for _, part := range parts {
		for _, r := range strings.ToLower(part) {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				b.WriteRune(r)
				dash = false
			default:
				if b.Len() > 0 && !dash {
					b.WriteByte('-')
					dash = true
				}
			}
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
