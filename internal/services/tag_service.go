package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/isdelr/inkwell-be/internal/database"
	"github.com/isdelr/inkwell-be/internal/models"
)

const maxTagLength = 50

// querier is satisfied by both the pool and a transaction, so tag writes can
// join the caller's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TagServiceProvider defines the interface for tag services.
type TagServiceProvider interface {
	ListTags(ctx context.Context) ([]models.Tag, error)
}

// TagService maps tag names onto persisted tags.
type TagService struct {
	db *database.DB
}

// NewTagService creates a new TagService.
func NewTagService(db *database.DB) *TagService {
	return &TagService{db: db}
}

// NormalizeTagNames trims names, drops empties and collapses duplicates while
// keeping first-seen order.
func NormalizeTagNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if utf8.RuneCountInString(n) > maxTagLength {
			return nil, invalid("tags", fmt.Sprintf("Tag names may not exceed %d characters.", maxTagLength))
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// Reconcile resolves every name to a stored tag, creating the missing ones.
// Concurrent creators of the same name are settled by the unique index: the
// insert is a no-op for the loser, who then reads the winner's row.
func (s *TagService) Reconcile(ctx context.Context, q querier, names []string) ([]models.Tag, error) {
	normalized, err := NormalizeTagNames(names)
	if err != nil {
		return nil, err
	}

	tags := make([]models.Tag, 0, len(normalized))
	for _, name := range normalized {
		tag, err := s.lookup(ctx, q, name)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err = q.ExecContext(ctx, s.db.Rebind(`INSERT INTO tags (name) VALUES (?) ON CONFLICT (name) DO NOTHING`), name); err != nil {
				return nil, fmt.Errorf("create tag %q: %w", name, err)
			}
			tag, err = s.lookup(ctx, q, name)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *TagService) lookup(ctx context.Context, q querier, name string) (models.Tag, error) {
	var tag models.Tag
	err := q.QueryRowContext(ctx, s.db.Rebind(`SELECT id, name FROM tags WHERE name = ?`), name).Scan(&tag.ID, &tag.Name)
	return tag, err
}

// SetPostTags replaces the tag links of a post.
func (s *TagService) SetPostTags(ctx context.Context, q querier, postID int64, tags []models.Tag) error {
	if _, err := q.ExecContext(ctx, s.db.Rebind(`DELETE FROM post_tags WHERE post_id = ?`), postID); err != nil {
		return err
	}
	for _, tag := range tags {
		_, err := q.ExecContext(ctx, s.db.Rebind(`INSERT INTO post_tags (post_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`), postID, tag.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// TagsForPosts loads the tags of several posts in one query.
func (s *TagService) TagsForPosts(ctx context.Context, q querier, postIDs []int64) (map[int64][]models.Tag, error) {
	out := make(map[int64][]models.Tag, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(postIDs)), ", ")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, s.db.Rebind(`
		SELECT pt.post_id, t.id, t.name
		FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id IN (`+placeholders+`)
		ORDER BY t.name`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var postID int64
		var tag models.Tag
		if err := rows.Scan(&postID, &tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		out[postID] = append(out[postID], tag)
	}
	return out, rows.Err()
}

// ListTags returns every tag ordered by name.
func (s *TagService) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
