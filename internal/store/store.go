package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptex/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a looked up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when creating a user whose email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// Store is the storage handle the REST layer works against.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser persists u. The unique index on email is the authority on
// duplicates.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// FindUserByEmail loads a user by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListCoins returns every coin ordered by id.
func (s *Store) ListCoins(ctx context.Context) ([]models.Coin, error) {
	var coins []models.Coin
	if err := s.db.WithContext(ctx).Order("id").Find(&coins).Error; err != nil {
		return nil, fmt.Errorf("failed to list coins: %w", err)
	}
	return coins, nil
}

// GetCoin loads a coin by id.
func (s *Store) GetCoin(ctx context.Context, id uint) (*models.Coin, error) {
	var coin models.Coin
	if err := s.db.WithContext(ctx).First(&coin, id).Error; err != nil {
		return nil, notFound(err, "coin")
	}
	return &coin, nil
}

// CreateBalance persists b.
func (s *Store) CreateBalance(ctx context.Context, b *models.Balance) error {
	if err := s.db.WithContext(ctx).Omit("Coin").Create(b).Error; err != nil {
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

// DateRange restricts a balance listing by creation time. Zero bounds are open.
// Both bounds are inclusive.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ListBalances returns the balances of a user within r, with their coins loaded.
func (s *Store) ListBalances(ctx context.Context, userID uint, r DateRange) ([]models.Balance, error) {
	q := s.db.WithContext(ctx).Preload("Coin").Where("user_id = ?", userID)
	if !r.From.IsZero() {
		q = q.Where("created_at >= ?", r.From.Local())
	}
	if !r.To.IsZero() {
		q = q.Where("created_at <= ?", r.To.Local())
	}

	var balances []models.Balance
	if err := q.Order("id").Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return balances, nil
}

// GetBalance loads a balance and its coin. It returns ErrNotFound if absent.
func (s *Store) GetBalance(ctx context.Context, id uint) (*models.Balance, error) {
	var b models.Balance
	if err := s.db.WithContext(ctx).Preload("Coin").First(&b, id).Error; err != nil {
		return nil, notFound(err, "balance")
	}
	return &b, nil
}

// UpdateBalance sets the amount and coin of an existing balance and returns the
// stored result with its new coin loaded.
func (s *Store) UpdateBalance(ctx context.Context, id uint, amount decimal.Decimal, coinID uint) (*models.Balance, error) {
	res := s.db.WithContext(ctx).Model(&models.Balance{}).Where("id = ?", id).
		Updates(map[string]interface{}{"amount": amount, "coin_id": coinID})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update balance %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetBalance(ctx, id)
}

// DeleteBalance hard-deletes a balance. Deleting an absent id is not an error.
func (s *Store) DeleteBalance(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.Balance{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete balance %d: %w", id, err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
