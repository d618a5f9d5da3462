// Package catalogfile persists the source registry as a human-editable YAML document grouped
// by category.
package catalogfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"FeedSentinel/internal/domain"
	"FeedSentinel/internal/ports"
)

const lockRetryDelay = 100 * time.Millisecond

// Store reads and rewrites the registry file under an advisory lock.
type Store struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
}

var _ ports.CatalogStore = (*Store)(nil)

// NewStore points the store at path; the lock file lives next to it.
func NewStore(path string, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &Store{path: path, lockTimeout: lockTimeout, now: time.Now}
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the catalog under a shared lock. A missing file is an empty catalog.
func (s *Store) Load(ctx context.Context) (domain.Catalog, error) {
	lock, err := s.acquire(ctx, false)
	if err != nil {
		return domain.Catalog{}, err
	}
	defer func() { _ = lock.Unlock() }()

	return s.read()
}

// Update performs a locked read-modify-write and replaces the file atomically.
func (s *Store) Update(ctx context.Context, fn func(*domain.Catalog) (bool, error)) error {
	lock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	cat, err := s.read()
	if err != nil {
		return err
	}

	changed, err := fn(&cat)
	if err != nil || !changed {
		return err
	}

	cat.Version++
	cat.UpdatedAt = s.now().UTC()
	return s.write(cat)
}

func (s *Store) acquire(ctx context.Context, exclusive bool) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	lock := flock.New(s.path + ".lock")
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = lock.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		ok, err = lock.TryRLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("lock registry %s: %w", s.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock registry %s: not acquired", s.path)
	}
	return lock, nil
}

func (s *Store) read() (domain.Catalog, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Catalog{}, nil
	}
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read registry %s: %w", s.path, err)
	}
	return Decode(raw)
}

func (s *Store) write(cat domain.Catalog) error {
	raw, err := Encode(cat)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace registry %s: %w", s.path, err)
	}
	return nil
}

// Encode renders the catalog grouped by category.
func Encode(cat domain.Catalog) ([]byte, error) {
	doc := fileDocument{Version: cat.Version}
	if !cat.UpdatedAt.IsZero() {
		doc.UpdatedAt = cat.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, group := range cat.Grouped() {
		section := fileCategory{Name: string(group.Category)}
		for _, src := range group.Sources {
			section.Sources = append(section.Sources, toRecord(src))
		}
		doc.Categories = append(doc.Categories, section)
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	return append([]byte(header), raw...), nil
}

// Decode parses a registry document and checks id uniqueness.
func Decode(raw []byte) (domain.Catalog, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode registry: %w", err)
	}

	cat := domain.Catalog{Version: doc.Version}
	if doc.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, doc.UpdatedAt); err == nil {
			cat.UpdatedAt = t
		}
	}

	seen := map[string]struct{}{}
	for _, section := range doc.Categories {
		category, err := domain.ParseCategory(section.Name)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("decode registry: %w", err)
		}
		for _, rec := range section.Sources {
			src, err := rec.toSource(category)
			if err != nil {
				return domain.Catalog{}, fmt.Errorf("decode registry: category %s: %w", section.Name, err)
			}
			if _, dup := seen[src.ID]; dup {
				return domain.Catalog{}, fmt.Errorf("decode registry: duplicate source id %q", src.ID)
			}
			seen[src.ID] = struct{}{}
			cat.Sources = append(cat.Sources, src)
		}
	}
	return cat, nil
}

const header = "# Source registry. Edit by hand or let recovery runs maintain it.\n" +
	"# Sources are never deleted: inactive entries keep their deactivation notes for audit.\n"
