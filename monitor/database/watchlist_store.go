package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"wallet-sentry/monitor/internal/models"
)

// ErrDuplicateWatchlistItem is returned when a user already monitors the
// same (address, chain, token) combination.
var ErrDuplicateWatchlistItem = errors.New("wallet already in watchlist")

// Store wraps the gorm handle with the operations the scanner, dispatcher,
// handlers and bot consume.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListWatchlistItems returns every active monitor, oldest first so long
// standing items are not starved when a pass hits its deadline.
func (s *Store) ListWatchlistItems() ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	if err := s.db.Order("id asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing watchlist items: %w", err)
	}
	return items, nil
}

// WatchlistForUser returns one user's monitors, newest first.
func (s *Store) WatchlistForUser(userID uint) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	err := s.db.Where("user_id = ?", userID).Order("created_at desc").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("listing watchlist for user %d: %w", userID, err)
	}
	return items, nil
}

// AddWatchlistItem creates a monitor, normalizing EVM addresses to
// lowercase. Solana addresses are case-sensitive and stored as given.
func (s *Store) AddWatchlistItem(item *models.WatchlistItem) error {
	if item.Chain != "solana" {
		item.Address = strings.ToLower(item.Address)
		item.TokenAddress = strings.ToLower(item.TokenAddress)
	}

	var count int64
	err := s.db.Model(&models.WatchlistItem{}).
		Where("user_id = ? AND address = ? AND chain = ? AND token_address = ?",
			item.UserID, item.Address, item.Chain, item.TokenAddress).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("checking for existing watchlist item: %w", err)
	}
	if count > 0 {
		return ErrDuplicateWatchlistItem
	}

	if err := s.db.Create(item).Error; err != nil {
		return fmt.Errorf("creating watchlist item: %w", err)
	}
	return nil
}

// RemoveWatchlistItem deletes a monitor, scoped to the owning user.
func (s *Store) RemoveWatchlistItem(itemID, userID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", itemID, userID).Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return fmt.Errorf("deleting watchlist item %d: %w", itemID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemoveWatchlistItemByAddress deletes a user's monitor by its identity
// tuple (used by the bot's /unwatch command).
func (s *Store) RemoveWatchlistItemByAddress(userID uint, chain, address string) error {
	if chain != "solana" {
		address = strings.ToLower(address)
	}
	result := s.db.Where("user_id = ? AND chain = ? AND address = ?", userID, chain, address).
		Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return fmt.Errorf("deleting watchlist item %s/%s: %w", chain, address, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdvanceCheckpoint moves the item's checkpoint forward. The guard keeps
// it monotonic even under overlapping passes: a stale pass can never pull
// the checkpoint backwards.
func (s *Store) AdvanceCheckpoint(itemID uint, newCheckpoint int64) error {
	err := s.db.Model(&models.WatchlistItem{}).
		Where("id = ? AND checkpoint < ?", itemID, newCheckpoint).
		Update("checkpoint", newCheckpoint).Error
	if err != nil {
		return fmt.Errorf("advancing checkpoint for item %d: %w", itemID, err)
	}
	return nil
}

// TouchLastChecked records the scan attempt time. Observability only;
// never used as a scan boundary.
func (s *Store) TouchLastChecked(itemID uint) error {
	now := time.Now().UTC()
	return s.db.Model(&models.WatchlistItem{}).
		Where("id = ?", itemID).
		Update("last_checked_at", now).Error
}

// CleanupExpiredTrials removes the watchlist items of non-premium users
// whose trial has lapsed, returning how many monitors were dropped.
func (s *Store) CleanupExpiredTrials(now time.Time) (int64, error) {
	var expiredUserIDs []uint
	err := s.db.Model(&models.User{}).
		Where("is_premium = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", false, now).
		Pluck("id", &expiredUserIDs).Error
	if err != nil {
		return 0, fmt.Errorf("finding expired trial users: %w", err)
	}
	if len(expiredUserIDs) == 0 {
		return 0, nil
	}

	result := s.db.Where("user_id IN ?", expiredUserIDs).Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("removing expired trial watchlist items: %w", result.Error)
	}
	return result.RowsAffected, nil
}
