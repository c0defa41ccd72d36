package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/isdelr/inkwell-be/internal/models"
	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/rs/zerolog/log"
)

const maxPageSize = 100

// PostHandler handles HTTP requests related to blog posts.
type PostHandler struct {
	service   services.PostServiceProvider
	presenter *Presenter
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(service services.PostServiceProvider, presenter *Presenter) *PostHandler {
	return &PostHandler{service: service, presenter: presenter}
}

// tagNames accepts tags as plain strings or as {"name": ...} objects.
type tagNames []string

func (t *tagNames) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("tag must be a string or an object with a name: %w", err)
		}
		names = append(names, obj.Name)
	}
	*t = names
	return nil
}

// PostPayload defines the structure for post create and update requests.
type PostPayload struct {
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	Tags        *tagNames `json:"tags"`
	ImageBase64 *string   `json:"image_base64"`
}

func (p PostPayload) input() services.PostInput {
	in := services.PostInput{Title: p.Title, Content: p.Content, Image: p.ImageBase64}
	if p.Tags != nil {
		names := []string(*p.Tags)
		in.Tags = &names
	}
	return in
}

// Create handles the request to create a new post for the current user.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var payload PostPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), claims.UserID, payload.input())
	if err != nil {
		log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("Failed to create post")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.presenter.Post(post))
}

// GetAll handles listing posts, newest first. Supports ?tag=, ?limit= and
// ?offset=.
func (h *PostHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PostFilter{Tag: q.Get("tag")}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "A positive integer is required.", Code: services.CodeInvalid, Field: "limit"})
			return
		}
		filter.Limit = min(limit, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "A non-negative integer is required.", Code: services.CodeInvalid, Field: "offset"})
			return
		}
		filter.Offset = offset
		if filter.Limit == 0 {
			filter.Limit = maxPageSize
		}
	}

	posts, err := h.service.ListPosts(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve posts")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.presenter.Posts(posts))
}

// Get handles the request to get a single post by its ID.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.presenter.Post(post))
}

// Update handles PUT (title and content required) and PATCH (partial)
// requests from the post's author.
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var payload PostPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	partial := r.Method == http.MethodPatch
	post, err := h.service.UpdatePost(r.Context(), claims.UserID, id, payload.input(), partial)
	if err != nil {
		log.Warn().Err(err).Int64("post_id", id).Int64("user_id", claims.UserID).Msg("Failed to update post")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.presenter.Post(post))
}

// Delete handles the request to delete a post.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeletePost(r.Context(), claims.UserID, id); err != nil {
		log.Warn().Err(err).Int64("post_id", id).Int64("user_id", claims.UserID).Msg("Failed to delete post")
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
