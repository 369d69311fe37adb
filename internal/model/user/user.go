package user

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidUser marks a record that does not match the declared user shape.
var ErrInvalidUser = errors.New("invalid user record")

// User is one record from the remote directory, annotated with the favorite flag.
type User struct {
	ID         int    `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
	IsFavorite bool   `json:"isFavorite"`
}

// FullName joins first and last name the way list rows display them.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Validate checks the record against the declared shape. Payloads from the
// directory and from storage are both untrusted.
func (u User) Validate() error {
	if u.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidUser, u.ID)
	}
	if strings.TrimSpace(u.FirstName) == "" {
		return fmt.Errorf("%w: user %d has empty first_name", ErrInvalidUser, u.ID)
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: user %d has empty email", ErrInvalidUser, u.ID)
	}

	avatar, err := url.Parse(u.Avatar)
	if err != nil || avatar.Host == "" || (avatar.Scheme != "http" && avatar.Scheme != "https") {
		return fmt.Errorf("%w: user %d has invalid avatar %q", ErrInvalidUser, u.ID, u.Avatar)
	}
	return nil
}

// ValidateAll returns the first validation failure in the list.
func ValidateAll(users []User) error {
	for _, u := range users {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	return nil
}
