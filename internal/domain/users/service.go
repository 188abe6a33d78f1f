package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt password hashing
	BcryptCost = 12

	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{1,64}$`)

// Service handles registration and authentication.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	cost   int
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// Option customizes a Service.
type Option func(*Service)

// WithBcryptCost overrides BcryptCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new user service instance
func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger.With().Str("component", "users").Logger(),
		cost:   BcryptCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. Usernames are matched exactly, including case.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return User{}, err
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, username, string(hash), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate returns the user for a username/password pair. An unknown username and a wrong
// password both yield ErrInvalidCredentials after a bcrypt comparison of similar cost.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return User{}, fmt.Errorf("failed to load user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Exists reports whether the account is still stored. Session tokens can outlive it.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return true, nil
}

// EnsureUser creates the account, or resets its password when it already exists.
// It reports whether a new row was created.
func (s *Service) EnsureUser(ctx context.Context, username, password string) (User, bool, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return User{}, false, err
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, false, fmt.Errorf("failed to check username: %w", err)
	}

	hash, herr := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if herr != nil {
		return User{}, false, fmt.Errorf("failed to hash password: %w", herr)
	}

	if err == nil {
		if err := s.repo.UpdatePasswordHash(ctx, existing.ID, string(hash)); err != nil {
			return User{}, false, fmt.Errorf("failed to update password: %w", err)
		}
		existing.PasswordHash = string(hash)
		s.logger.Info().Int64("user_id", existing.ID).Msg("user password reset")
		return existing, false, nil
	}

	user, err := s.repo.Create(ctx, username, string(hash), s.now().UTC())
	if err != nil {
		return User{}, false, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("user created")
	return user, true, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("orbit-timing-equalizer"), s.cost)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to build dummy hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateCredentials(username, password string) error {
	var v apperr.ValidationError
	switch {
	case username == "":
		v.Add("username", "Username is required")
	case !usernamePattern.MatchString(username):
		v.Add("username", "Username may only contain letters, digits and . _ @ + - (max 64)")
	}
	switch {
	case password == "":
		v.Add("password", "Password is required")
	case len(password) > MaxPasswordBytes:
		v.Add("password", "Password must be at most 72 bytes")
	}
	return v.Err()
}
