// Package account creates users with bcrypt-hashed passwords.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"threadloom/api/internal/store"
)

var (
	ErrUsernameTaken   = errors.New("a user with this username already exists")
	ErrInvalidUsername = errors.New("username is required")
	ErrInvalidPassword = errors.New("password is required")
	ErrBadCredentials  = errors.New("invalid username or password")
)

// UserStore is the persistence used by Service.
type UserStore interface {
	InsertUser(ctx context.Context, username, passwordHash string) (string, error)
	EnsureUser(ctx context.Context, username, passwordHash string) (string, error)
	FindUserByName(ctx context.Context, username string) (store.User, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// NewServiceWithCost lets callers trade hash strength for speed.
func NewServiceWithCost(store UserStore, cost int) *Service {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &Service{store: store, cost: cost}
}

// CreateUser registers a new user and returns its id.
func (s *Service) CreateUser(ctx context.Context, username, password string) (string, error) {
	username, hash, err := s.prepare(username, password)
	if err != nil {
		return "", err
	}
	id, err := s.store.InsertUser(ctx, username, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return "", ErrUsernameTaken
	}
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// EnsureUser returns the id of username, creating it with password when it
// does not exist yet.
func (s *Service) EnsureUser(ctx context.Context, username, password string) (string, error) {
	username, hash, err := s.prepare(username, password)
	if err != nil {
		return "", err
	}
	id, err := s.store.EnsureUser(ctx, username, hash)
	if err != nil {
		return "", fmt.Errorf("ensure user %s: %w", username, err)
	}
	return id, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	user, err := s.store.FindUserByName(ctx, strings.TrimSpace(username))
	if err != nil {
		return store.User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrBadCredentials
	}
	return user, nil
}

func (s *Service) prepare(username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", ErrInvalidUsername
	}
	if password == "" {
		return "", "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return username, string(hash), nil
}
