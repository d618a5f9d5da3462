package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists published articles and probe verdicts into Postgres.
type PostgresRepository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

var (
	_ ports.ArticleSink = (*PostgresRepository)(nil)
	_ ports.VerdictLog  = (*PostgresRepository)(nil)
)

// Open connects to Postgres through lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// EnsureSchema creates the tables when they are missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// KnownLinks returns the subset of links that are already stored.
func (r *PostgresRepository) KnownLinks(ctx context.Context, links []string) (map[string]bool, error) {
	if r.db == nil || len(links) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := psql.Select("source_link").
		From("articles").
		Where("source_link = ANY(?)", pq.StringArray(links)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known links query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known links: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan link: %w", err)
		}
		result[link] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveArticle upserts the article keyed by its source link and returns the stored id.
func (r *PostgresRepository) SaveArticle(ctx context.Context, article domain.StoredArticle) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("postgres repository has no connection")
	}

	if article.ID == "" {
		article.ID = r.newID()
	}
	if article.Status == "" {
		article.Status = domain.ArticlePublished
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = r.now().UTC()
	}

	query, args, err := psql.Insert("articles").
		Columns("id", "title", "body", "summary", "category", "source_id", "source_link", "image_url", "published_at", "status", "created_at").
		Values(
			article.ID,
			article.Title,
			article.Body,
			article.Summary,
			string(article.Category),
			article.SourceID,
			article.SourceLink,
			article.ImageURL,
			article.PublishedAt,
			string(article.Status),
			article.CreatedAt,
		).
		Suffix(`ON CONFLICT (source_link) DO UPDATE
              SET title = EXCLUDED.title,
                  body = EXCLUDED.body,
                  summary = EXCLUDED.summary,
                  image_url = EXCLUDED.image_url,
                  updated_at = NOW()
              RETURNING id`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert: %w", err)
	}

	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert article: %w", err)
	}

	return id, nil
}

// RecordVerdicts appends one row per verdict to the health log.
func (r *PostgresRepository) RecordVerdicts(ctx context.Context, runID string, verdicts []domain.HealthVerdict) error {
	if r.db == nil || len(verdicts) == 0 {
		return nil
	}

	insert := psql.Insert("source_health_log").
		Columns("run_id", "source_id", "category", "url", "status", "item_count", "http_status", "error_message", "latency_ms", "checked_at")
	for _, v := range verdicts {
		insert = insert.Values(
			runID,
			v.SourceID,
			string(v.Category),
			v.URL,
			string(v.Status),
			v.ItemCount,
			nullableStatus(v.HTTPStatus),
			v.ErrorMessage,
			v.Latency.Milliseconds(),
			v.CheckedAt,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build verdict insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert verdicts: %w", err)
	}

	return nil
}

func nullableStatus(code int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(code), Valid: code != 0}
}
