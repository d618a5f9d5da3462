package catalogfile

import (
	"fmt"
	"strings"
	"time"

	"FeedSentinel/internal/domain"
)

type fileDocument struct {
	Version    int64          `yaml:"version"`
	UpdatedAt  string         `yaml:"updatedAt,omitempty"`
	Categories []fileCategory `yaml:"categories"`
}

type fileCategory struct {
	Name    string       `yaml:"name"`
	Sources []fileSource `yaml:"sources"`
}

type fileSource struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	URL                string            `yaml:"url"`
	Kind               string            `yaml:"kind,omitempty"`
	Active             bool              `yaml:"active"`
	FetchFrequency     string            `yaml:"fetchFrequency,omitempty"`
	Origin             string            `yaml:"origin,omitempty"`
	AddedAt            string            `yaml:"addedAt,omitempty"`
	DeactivatedAt      string            `yaml:"deactivatedAt,omitempty"`
	DeactivationReason string            `yaml:"deactivationReason,omitempty"`
	Metadata           map[string]string `yaml:"metadata,omitempty"`
	Notes              []string          `yaml:"notes,omitempty"`
}

func toRecord(src domain.Source) fileSource {
	rec := fileSource{
		ID:                 src.ID,
		Name:               src.Name,
		URL:                src.URL,
		Kind:               string(src.Kind),
		Active:             src.Active,
		FetchFrequency:     formatDuration(src.FetchFrequency),
		Origin:             string(src.Origin),
		DeactivationReason: src.DeactivationReason,
		Metadata:           src.Metadata,
		Notes:              src.Notes,
	}
	if !src.AddedAt.IsZero() {
		rec.AddedAt = src.AddedAt.UTC().Format(time.RFC3339)
	}
	if src.DeactivatedAt != nil {
		rec.DeactivatedAt = src.DeactivatedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

func (r fileSource) toSource(category domain.Category) (domain.Source, error) {
	if strings.TrimSpace(r.ID) == "" {
		return domain.Source{}, fmt.Errorf("source with url %q has no id", r.URL)
	}

	kind, err := domain.ParseKind(r.Kind)
	if err != nil {
		return domain.Source{}, fmt.Errorf("source %s: %w", r.ID, err)
	}

	src := domain.Source{
		ID:                 r.ID,
		Name:               r.Name,
		URL:                r.URL,
		Category:           category,
		Kind:               kind,
		Active:             r.Active,
		Origin:             domain.Origin(r.Origin),
		DeactivationReason: r.DeactivationReason,
		Metadata:           r.Metadata,
		Notes:              r.Notes,
	}

	if r.FetchFrequency != "" {
		d, err := time.ParseDuration(r.FetchFrequency)
		if err != nil {
			return domain.Source{}, fmt.Errorf("source %s: fetchFrequency: %w", r.ID, err)
		}
		src.FetchFrequency = d
	}
	if r.AddedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.AddedAt); err == nil {
			src.AddedAt = t
		}
	}
	if r.DeactivatedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.DeactivatedAt); err == nil {
			src.DeactivatedAt = &t
		}
	}
	return src, nil
}

// formatDuration drops zero trailing units: 6h0m0s becomes 6h.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
