package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/inkwell-be/internal/database"
	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/isdelr/inkwell-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Feed actions pushed to live subscribers.
const (
	ActionPostCreated = "post.created"
	ActionPostUpdated = "post.updated"
	ActionPostDeleted = "post.deleted"
)

// Publisher fans post changes out to live subscribers.
type Publisher interface {
	Publish(action string, payload any)
}

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	CreatePost(ctx context.Context, authorID int64, in PostInput) (models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error)
	UpdatePost(ctx context.Context, actorID, postID int64, in PostInput, partial bool) (models.Post, error)
	DeletePost(ctx context.Context, actorID, postID int64) error
}

// PostInput carries post fields from a request. Nil means "not supplied".
type PostInput struct {
	Title   *string
	Content *string
	Tags    *[]string
	Image   *string // data-URI
}

// PostService provides business logic for blog posts.
type PostService struct {
	db        *database.DB
	tags      *TagService
	media     *media.Store
	events    EventServiceProvider
	publisher Publisher
	now       func() time.Time
}

// NewPostService creates a new PostService. publisher may be nil.
func NewPostService(db *database.DB, tags *TagService, store *media.Store, events EventServiceProvider, publisher Publisher) *PostService {
	return &PostService{
		db:        db,
		tags:      tags,
		media:     store,
		events:    events,
		publisher: publisher,
		now:       time.Now,
	}
}

// postChange is a validated PostInput.
type postChange struct {
	title, content *string
	tags           []string // nil when not supplied
	image          *media.Image
}

// validatePostInput checks the supplied fields. requireAll demands title and
// content, as for creation and full updates.
func (s *PostService) validatePostInput(in PostInput, requireAll bool) (postChange, error) {
	var change postChange

	if in.Title == nil && requireAll {
		return change, required("title")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return change, err
		}
		change.title = &title
	}

	if in.Content == nil && requireAll {
		return change, required("content")
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return change, err
		}
		change.content = in.Content
	}

	if in.Tags != nil {
		names, err := NormalizeTagNames(*in.Tags)
		if err != nil {
			return change, err
		}
		change.tags = names
	}

	if in.Image != nil && *in.Image != "" {
		img, err := s.media.Prepare(*in.Image)
		if err != nil {
			return change, invalidImage("image_base64", err)
		}
		change.image = &img
	}
	return change, nil
}

// CreatePost creates a post owned by authorID. The image is decoded before
// anything is written, and the row, its tags and its image reference commit
// together.
func (s *PostService) CreatePost(ctx context.Context, authorID int64, in PostInput) (models.Post, error) {
	change, err := s.validatePostInput(in, true)
	if err != nil {
		return models.Post{}, err
	}

	imageName := ""
	if change.image != nil {
		imageName, err = s.media.Save(media.PostImageDir, *change.title, *change.image)
		if err != nil {
			return models.Post{}, fmt.Errorf("store post image: %w", err)
		}
	}

	var postID int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.db.Rebind(`
			INSERT INTO posts (title, content, author_id, image, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id`),
			*change.title, *change.content, authorID, nullString(imageName), s.now().UTC(),
		).Scan(&postID)
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return s.applyTags(ctx, tx, postID, change.tags)
	})
	if err != nil {
		s.discardBlob(imageName)
		return models.Post{}, err
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return models.Post{}, err
	}

	recordEvent(ctx, s.events, "post.create", fmt.Sprintf("Post '%s' created.", post.Title), authorID)
	s.publish(ActionPostCreated, post)
	return post, nil
}

// GetPost retrieves a single post with its author summary and tags.
func (s *PostService) GetPost(ctx context.Context, id int64) (models.Post, error) {
	posts, err := s.queryPosts(ctx, "WHERE p.id = ?", []any{id})
	if err != nil {
		return models.Post{}, err
	}
	if len(posts) == 0 {
		return models.Post{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return posts[0], nil
}

// ListPosts returns posts newest first, optionally restricted to a tag.
func (s *PostService) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	var where string
	var args []any
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		where = `WHERE p.id IN (
			SELECT pt.post_id FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE t.name = ?)`
		args = append(args, tag)
	}
	where += " ORDER BY p.created_at DESC, p.id DESC"
	if filter.Limit > 0 {
		where += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}
	return s.queryPosts(ctx, where, args)
}

// UpdatePost changes a post on behalf of actorID, who must be its author.
// With partial set, unspecified fields keep their values; otherwise title
// and content are required.
func (s *PostService) UpdatePost(ctx context.Context, actorID, postID int64, in PostInput, partial bool) (models.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return models.Post{}, err
	}
	if post.Author.ID != actorID {
		return models.Post{}, ErrPermissionDenied
	}

	change, err := s.validatePostInput(in, !partial)
	if err != nil {
		return models.Post{}, err
	}
	if change.title != nil {
		post.Title = *change.title
	}
	if change.content != nil {
		post.Content = *change.content
	}

	oldImage := post.Image
	newImage := ""
	if change.image != nil {
		newImage, err = s.media.Save(media.PostImageDir, post.Title, *change.image)
		if err != nil {
			return models.Post{}, fmt.Errorf("store post image: %w", err)
		}
		post.Image = newImage
	}

	if err := s.saveUpdate(ctx, post, change.tags); err != nil {
		s.discardBlob(newImage)
		return models.Post{}, err
	}
	if newImage != "" {
		s.discardBlob(oldImage)
	}

	updated, err := s.GetPost(ctx, postID)
	if err != nil {
		return models.Post{}, err
	}

	recordEvent(ctx, s.events, "post.update", fmt.Sprintf("Post '%s' updated.", updated.Title), actorID)
	s.publish(ActionPostUpdated, updated)
	return updated, nil
}

// DeletePost removes a post on behalf of actorID, who must be its author.
func (s *PostService) DeletePost(ctx context.Context, actorID, postID int64) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Author.ID != actorID {
		return ErrPermissionDenied
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM posts WHERE id = ?"), postID); err != nil {
		return err
	}
	s.discardBlob(post.Image)

	recordEvent(ctx, s.events, "post.delete", fmt.Sprintf("Post '%s' was deleted.", post.Title), actorID)
	s.publish(ActionPostDeleted, post)
	return nil
}

// saveUpdate writes post's fields and, when tags is non-nil, replaces its
// tag set. A post deleted since it was read yields ErrNotFound.
func (s *PostService) saveUpdate(ctx context.Context, post models.Post, tags []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE posts SET title = ?, content = ?, image = ? WHERE id = ?`),
			post.Title, post.Content, nullString(post.Image), post.ID)
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("post %d: %w", post.ID, ErrNotFound)
		}
		if tags == nil {
			return nil
		}
		return s.applyTags(ctx, tx, post.ID, tags)
	})
}

func (s *PostService) applyTags(ctx context.Context, tx *sql.Tx, postID int64, names []string) error {
	tags, err := s.tags.Reconcile(ctx, tx, names)
	if err != nil {
		return err
	}
	return s.tags.SetPostTags(ctx, tx, postID, tags)
}

// queryPosts runs the post projection query with the given tail and attaches
// tags. Rows are drained before the tag query runs so a single-connection
// pool never waits on itself.
func (s *PostService) queryPosts(ctx context.Context, tail string, args []any) ([]models.Post, error) {
	posts, err := s.scanPosts(ctx, tail, args)
	if err != nil || len(posts) == 0 {
		return posts, err
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	tags, err := s.tags.TagsForPosts(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Tags = tags[posts[i].ID]
		if posts[i].Tags == nil {
			posts[i].Tags = []models.Tag{}
		}
	}
	return posts, nil
}

func (s *PostService) scanPosts(ctx context.Context, tail string, args []any) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT p.id, p.title, p.content, p.image, p.created_at, u.id, u.username
		FROM posts p JOIN users u ON u.id = p.author_id `+tail), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var post models.Post
		var image sql.NullString
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &image, &post.CreatedAt, &post.Author.ID, &post.Author.Username); err != nil {
			return nil, err
		}
		post.Image = image.String
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *PostService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	return tx.Commit()
}

func (s *PostService) publish(action string, post models.Post) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{"id": post.ID}
	if action != ActionPostDeleted {
		payload["title"] = post.Title
		payload["author"] = post.Author
		payload["created_at"] = post.CreatedAt
	}
	s.publisher.Publish(action, payload)
}

func (s *PostService) discardBlob(name string) {
	if err := s.media.Remove(name); err != nil {
		log.Warn().Err(err).Str("blob", name).Msg("Failed to remove image blob")
	}
}
