package services

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// ValidatePassword enforces the signup strength policy: at least eight
// characters with an uppercase letter, a lowercase letter, a digit and one
// of the characters in passwordSpecials.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return required("username")
	}
	if utf8.RuneCountInString(username) > 150 {
		return invalid("username", "Ensure this field has no more than 150 characters.")
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("@.+-_", r) {
			return invalid("username", "Enter a valid username. It may contain only letters, numbers, and @/./+/-/_ characters.")
		}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("email", "Enter a valid email address.")
	}
	return nil
}

func validateMobile(mobile string) error {
	if mobile == "" {
		return required("mobile")
	}
	if utf8.RuneCountInString(mobile) > 20 {
		return invalid("mobile", "Ensure this field has no more than 20 characters.")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return required("title")
	}
	if utf8.RuneCountInString(title) > 255 {
		return invalid("title", "Ensure this field has no more than 255 characters.")
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return required("content")
	}
	return nil
}
