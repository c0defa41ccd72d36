package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/inkwell-be/internal/auth"
	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service   services.UserServiceProvider
	issuer    *auth.Issuer
	presenter *Presenter
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, issuer *auth.Issuer, presenter *Presenter) *UserHandler {
	return &UserHandler{service: service, issuer: issuer, presenter: presenter}
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupPayload defines the structure for registration requests.
type SignupPayload struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile"`
	Password       string `json:"password"`
	ProfilePicture string `json:"profile_picture"` // data-URI
}

// ProfileUpdatePayload carries a partial profile change. The picture is
// accepted under either name.
type ProfileUpdatePayload struct {
	Username             *string `json:"username"`
	Email                *string `json:"email"`
	Mobile               *string `json:"mobile"`
	ProfilePictureBase64 *string `json:"profile_picture_base64"`
	ProfilePicture       *string `json:"profile_picture"`
}

// RefreshPayload carries the refresh token being exchanged.
type RefreshPayload struct {
	Refresh string `json:"refresh"`
}

// Signup handles new user registration.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload SignupPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Signup(r.Context(), services.SignupInput{
		Username:       payload.Username,
		Email:          payload.Email,
		Mobile:         payload.Mobile,
		Password:       payload.Password,
		ProfilePicture: payload.ProfilePicture,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			log.Info().Err(err).Str("username", payload.Username).Msg("Rejected signup")
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.presenter.User(user))
}

// Login handles user authentication and JWT generation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			log.Warn().Str("username", payload.Username).Msg("Failed authentication attempt")
		}
		writeError(w, r, err)
		return
	}

	pair, err := h.issuer.IssuePair(user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.Access,
		"refresh_token": pair.Refresh,
		"username":      user.Username,
		"user_id":       user.ID,
	})
}

// Refresh exchanges a refresh token for a new access token.
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload RefreshPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "This field is required.", Code: services.CodeRequired, Field: "refresh"})
		return
	}

	access, err := h.issuer.Refresh(payload.Refresh)
	if err != nil {
		log.Debug().Err(err).Msg("Refused token refresh")
		writeMessage(w, http.StatusUnauthorized, "token_not_valid", "Token is invalid or expired.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

// GetProfile handles retrieving a user by their ID.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", id).Msg("Failed to get user by ID")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.presenter.User(user))
}

// UpdateProfile updates the authenticated user's own profile. PUT and PATCH
// both leave omitted fields unchanged.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	var payload ProfileUpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	picture := payload.ProfilePictureBase64
	if picture == nil {
		picture = payload.ProfilePicture
	}

	user, err := h.service.UpdateProfile(r.Context(), claims.UserID, services.ProfileUpdate{
		Username:       payload.Username,
		Email:          payload.Email,
		Mobile:         payload.Mobile,
		ProfilePicture: picture,
	})
	if err != nil {
		log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("Failed to update profile")
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.presenter.User(user))
}
