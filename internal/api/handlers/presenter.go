package handlers

import (
	"time"

	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/isdelr/inkwell-be/internal/models"
)

// Presenter renders models into response bodies, resolving blob names into
// URLs and inline data-URIs.
type Presenter struct {
	media *media.Store
}

// NewPresenter creates a Presenter backed by store.
func NewPresenter(store *media.Store) *Presenter {
	return &Presenter{media: store}
}

type userResponse struct {
	ID                     int64     `json:"id"`
	Username               string    `json:"username"`
	Email                  string    `json:"email"`
	Mobile                 string    `json:"mobile"`
	ProfilePicture         *string   `json:"profile_picture"`
	ProfilePictureAsBase64 *string   `json:"profile_picture_as_base64"`
	CreatedAt              time.Time `json:"created_at"`
}

type postResponse struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Content     string               `json:"content"`
	Tags        []models.Tag         `json:"tags"`
	Author      models.AuthorSummary `json:"author"`
	CreatedAt   time.Time            `json:"created_at"`
	Image       *string              `json:"image"`
	ImageBase64 *string              `json:"image_base64"`
}

func (p *Presenter) User(u models.User) userResponse {
	return userResponse{
		ID:                     u.ID,
		Username:               u.Username,
		Email:                  u.Email,
		Mobile:                 u.Mobile,
		ProfilePicture:         optional(p.media.URL(u.ProfilePicture)),
		ProfilePictureAsBase64: optional(p.media.DataURI(u.ProfilePicture)),
		CreatedAt:              u.CreatedAt,
	}
}

func (p *Presenter) Post(post models.Post) postResponse {
	tags := post.Tags
	if tags == nil {
		tags = []models.Tag{}
	}
	return postResponse{
		ID:          post.ID,
		Title:       post.Title,
		Content:     post.Content,
		Tags:        tags,
		Author:      post.Author,
		CreatedAt:   post.CreatedAt,
		Image:       optional(p.media.URL(post.Image)),
		ImageBase64: optional(p.media.DataURI(post.Image)),
	}
}

func (p *Presenter) Posts(posts []models.Post) []postResponse {
	out := make([]postResponse, len(posts))
	for i, post := range posts {
		out[i] = p.Post(post)
	}
	return out
}

// optional maps "" to a JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
