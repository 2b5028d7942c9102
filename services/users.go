// services/users.go - Player profiles
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"snapquest/database"
	"snapquest/models"
)

type UserService struct {
	store database.Store
}

func NewUserService(store database.Store) *UserService {
	return &UserService{store: store}
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.store.Get(ctx, userID, &user); err != nil {
		return nil, notFound(err, "user", userID)
	}
	return &user, nil
}

// EnsureUser returns the profile for an authenticated id, creating it at
// level 1 on first sight. Tokens are issued elsewhere, so the first request
// carrying a new subject registers it.
func (s *UserService) EnsureUser(ctx context.Context, userID, username string) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	user = &models.User{ID: userID, Username: username, DisplayName: username, Level: 1}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// Either the id raced with another request or the name is taken.
			if existing, getErr := s.GetUser(ctx, userID); getErr == nil {
				return existing, nil
			}
			return nil, fmt.Errorf("%w: username %q is taken", ErrInvalidInput, username)
		}
		return nil, err
	}
	return user, nil
}
