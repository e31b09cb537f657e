package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/logging"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// ErrInvalidCredentials is returned for any failed login. It does not say
// which part was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Document returns one document with its supplier name.
func (s *Service) Document(ctx context.Context, id int64) (*fiscal.Document, error) {
	doc, err := s.store.Queries().GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// Documents lists documents newest issue date first.
func (s *Service) Documents(ctx context.Context, f store.DocumentFilter) ([]fiscal.Document, error) {
	docs, err := s.store.Queries().ListDocuments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Login checks a password against the stored bcrypt hash of an active user.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Queries().UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		logging.FromContext(ctx).Info("login rejected for inactive user", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
