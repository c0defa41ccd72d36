package handlers

import (
	"net/http"

	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/rs/zerolog/log"
)

// TagHandler handles HTTP requests related to tags.
type TagHandler struct {
	service services.TagServiceProvider
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(service services.TagServiceProvider) *TagHandler {
	return &TagHandler{service: service}
}

// GetAll handles the request to get all tags.
func (h *TagHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve tags")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tags)
}
