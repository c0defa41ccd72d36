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
	"golang.org/x/crypto/bcrypt"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Signup(ctx context.Context, in SignupInput) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	Username       string
	Email          string
	Mobile         string
	Password       string
	ProfilePicture string // optional data-URI
}

// ProfileUpdate carries a partial profile change; nil fields stay untouched.
type ProfileUpdate struct {
	Username       *string
	Email          *string
	Mobile         *string
	ProfilePicture *string // data-URI
}

// UserService provides business logic for user management.
type UserService struct {
	db     *database.DB
	media  *media.Store
	events EventServiceProvider
	now    func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *database.DB, store *media.Store, events EventServiceProvider) *UserService {
	return &UserService{db: db, media: store, events: events, now: time.Now}
}

const userColumns = "id, username, email, mobile, password_hash, profile_picture, created_at"

func scanUser(scanner interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	var picture sql.NullString
	err := scanner.Scan(&user.ID, &user.Username, &user.Email, &user.Mobile, &user.PasswordHash, &picture, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.ProfilePicture = picture.String
	return user, nil
}

// ValidateSignup checks a registration payload without touching storage.
func ValidateSignup(in SignupInput) error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateMobile(in.Mobile); err != nil {
		return err
	}
	if in.Password == "" {
		return required("password")
	}
	return ValidatePassword(in.Password)
}

// Signup registers a new user, hashing their password.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if err := ValidateSignup(in); err != nil {
		return models.User{}, err
	}

	var picture media.Image
	if in.ProfilePicture != "" {
		img, err := s.media.Prepare(in.ProfilePicture)
		if err != nil {
			return models.User{}, invalidImage("profile_picture", err)
		}
		picture = img
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     in.Username,
		Email:        in.Email,
		Mobile:       in.Mobile,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now().UTC(),
	}

	if picture.Data != nil {
		name, err := s.media.Save(media.ProfilePictureDir, user.Username, picture)
		if err != nil {
			return models.User{}, fmt.Errorf("store profile picture: %w", err)
		}
		user.ProfilePicture = name
	}

	err = s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO users (username, email, mobile, password_hash, profile_picture, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		user.Username, user.Email, user.Mobile, user.PasswordHash, nullString(user.ProfilePicture), user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		s.discardBlob(user.ProfilePicture)
		if isUniqueViolation(err) {
			return models.User{}, duplicateUsername()
		}
		return models.User{}, err
	}

	recordEvent(ctx, s.events, "user.signup", fmt.Sprintf("User '%s' signed up.", user.Username), user.ID)

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// Authenticate verifies a user's credentials.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile applies a partial update to the user identified by id.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) (models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	if in.Username != nil {
		user.Username = strings.TrimSpace(*in.Username)
		if err := validateUsername(user.Username); err != nil {
			return models.User{}, err
		}
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
		if err := validateEmail(user.Email); err != nil {
			return models.User{}, err
		}
	}
	if in.Mobile != nil {
		user.Mobile = strings.TrimSpace(*in.Mobile)
		if err := validateMobile(user.Mobile); err != nil {
			return models.User{}, err
		}
	}

	oldPicture := user.ProfilePicture
	newPicture := ""
	if in.ProfilePicture != nil && *in.ProfilePicture != "" {
		img, err := s.media.Prepare(*in.ProfilePicture)
		if err != nil {
			return models.User{}, invalidImage("profile_picture", err)
		}
		newPicture, err = s.media.Save(media.ProfilePictureDir, user.Username, img)
		if err != nil {
			return models.User{}, fmt.Errorf("store profile picture: %w", err)
		}
		user.ProfilePicture = newPicture
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users SET username = ?, email = ?, mobile = ?, profile_picture = ? WHERE id = ?`),
		user.Username, user.Email, user.Mobile, nullString(user.ProfilePicture), id)
	if err != nil {
		s.discardBlob(newPicture)
		if isUniqueViolation(err) {
			return models.User{}, duplicateUsername()
		}
		return models.User{}, err
	}

	if newPicture != "" {
		s.discardBlob(oldPicture)
	}

	recordEvent(ctx, s.events, "profile.update", fmt.Sprintf("User '%s' updated their profile.", user.Username), user.ID)
	return user, nil
}

// DeleteUser removes a user and, through the foreign key cascade, their posts.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	blobs := []string{user.ProfilePicture}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind("SELECT image FROM posts WHERE author_id = ? AND image IS NOT NULL"), id)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		blobs = append(blobs, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM users WHERE id = ?"), id); err != nil {
		return err
	}
	for _, name := range blobs {
		s.discardBlob(name)
	}
	return nil
}

func (s *UserService) discardBlob(name string) {
	if err := s.media.Remove(name); err != nil {
		log.Warn().Err(err).Str("blob", name).Msg("Failed to remove image blob")
	}
}

func duplicateUsername() error {
	return &ValidationError{Field: "username", Code: CodeDuplicate, Message: "A user with that username already exists."}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
