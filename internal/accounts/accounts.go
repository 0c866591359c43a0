package accounts

import (
	"context"
	"errors"
	"fmt"

	"cryptex/internal/models"
	"cryptex/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingArgument is returned when the email or the password is empty.
	ErrMissingArgument = errors.New("email and password are required")
	// ErrWrongPassword is returned by Authenticate when the password does not
	// match the stored hash.
	ErrWrongPassword = errors.New("wrong password")
	// ErrUnknownEmail is returned by Authenticate when no user has the email.
	ErrUnknownEmail = errors.New("unknown email")
)

// Outcome tags the result of SignIn.
type Outcome int

const (
	// OutcomeWrongPassword means the email exists and the password did not match.
	OutcomeWrongPassword Outcome = iota
	// OutcomeCreated means a new user was registered.
	OutcomeCreated
	// OutcomeAuthenticated means an existing user gave the right password.
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAuthenticated:
		return "authenticated"
	default:
		return "wrong_password"
	}
}

// Users is the part of the store the service needs.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service registers and authenticates users.
type Service struct {
	users  Users
	logger *zap.Logger
	cost   int
}

// Option configures a Service.
type Option func(*Service)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a Service hashing with bcrypt.DefaultCost.
func NewService(users Users, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{users: users, logger: logger.Named("accounts"), cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new active user. It fails with store.ErrEmailTaken if the
// email is already registered.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingArgument
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{Email: email, PasswordHash: string(hash), IsActive: true}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Uint("user_id", u.ID))
	return u, nil
}

// Authenticate checks a password against the stored hash.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingArgument
	}

	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownEmail
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return u, nil
}

// SignIn authenticates an existing email or registers a new one. A wrong password
// is reported through the outcome, not the error.
func (s *Service) SignIn(ctx context.Context, email, password string) (Outcome, *models.User, error) {
	u, err := s.Authenticate(ctx, email, password)
	switch {
	case err == nil:
		return OutcomeAuthenticated, u, nil
	case errors.Is(err, ErrWrongPassword):
		s.logger.Info("Wrong password", zap.String("email", email))
		return OutcomeWrongPassword, nil, nil
	case !errors.Is(err, ErrUnknownEmail):
		return OutcomeWrongPassword, nil, err
	}

	u, err = s.Register(ctx, email, password)
	if errors.Is(err, store.ErrEmailTaken) {
		// Lost a race with a concurrent registration of the same email.
		return s.SignIn(ctx, email, password)
	}
	if err != nil {
		return OutcomeWrongPassword, nil, err
	}
	return OutcomeCreated, u, nil
}
