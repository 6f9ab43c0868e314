package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/AdamBeresnev/duel-organizer/internal/store"
	users "github.com/AdamBeresnev/duel-organizer/internal/user"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const maxUsernameLength = 50

type UserService struct {
	store *store.UserStore
	clock clockwork.Clock
}

func NewUserService(store *store.UserStore, clock clockwork.Clock) *UserService {
	return &UserService{store: store, clock: clock}
}

func validateUserName(username, tag string) error {
	if username == "" {
		return apperr.Validation("username is required")
	}
	if len(username) > maxUsernameLength {
		return apperr.Validation("username exceeds %d characters", maxUsernameLength)
	}
	if strings.Contains(tag, "#") {
		return apperr.Validation("tag cannot contain '#'")
	}
	return nil
}

// RegisterUser provisions an identity for a user the auth proxy has vouched for.
func (s *UserService) RegisterUser(ctx context.Context, id uuid.UUID, username, tag string) (*users.User, error) {
	username, tag = strings.TrimSpace(username), strings.TrimSpace(tag)
	if err := validateUserName(username, tag); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	user := &users.User{ID: id, Username: username, Tag: tag, CreatedAt: s.clock.Now().UTC()}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Integrity("user %s already exists", id)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", id.String()).Str("name", user.DisplayName()).Msg("user registered")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user", id)
	}
	return user, nil
}

func (s *UserService) Rename(ctx context.Context, id uuid.UUID, username, tag string) (*users.User, error) {
	username, tag = strings.TrimSpace(username), strings.TrimSpace(tag)
	if err := validateUserName(username, tag); err != nil {
		return nil, err
	}

	user := &users.User{ID: id, Username: username, Tag: tag}
	if err := s.store.UpdateUserName(ctx, user); err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			return nil, apperr.NotFound("user %s not found", id)
		}
		return nil, fmt.Errorf("failed to rename user: %w", err)
	}
	return s.GetUser(ctx, id)
}
