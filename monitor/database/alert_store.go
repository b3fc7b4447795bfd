package database

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"wallet-sentry/monitor/internal/models"
)

// CreateAlertsIfAbsent persists alerts with ON CONFLICT DO NOTHING on the
// (watchlist_item_id, transaction_hash) unique index and returns only the
// rows that were actually inserted. A conflict means another pass already
// created the alert; that is a successful no-op, not an error. Inserting
// row by row keeps "which ones are new" exact, which matters because only
// newly created alerts may be handed to the dispatcher.
func (s *Store) CreateAlertsIfAbsent(alerts []models.TransactionAlert) ([]models.TransactionAlert, error) {
	created := make([]models.TransactionAlert, 0, len(alerts))
	for i := range alerts {
		alert := alerts[i]
		result := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "watchlist_item_id"}, {Name: "transaction_hash"}},
			DoNothing: true,
		}).Create(&alert)
		if result.Error != nil {
			return created, fmt.Errorf("creating alert for tx %s: %w", alert.TransactionHash, result.Error)
		}
		if result.RowsAffected > 0 {
			created = append(created, alert)
		}
	}
	return created, nil
}

// MarkNotified records the delivery outcome. The status guard makes the
// transition one-way: once an alert left pending, a racing sweep cannot
// send or mark it again.
func (s *Store) MarkNotified(alertID uint, status string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.StatusSent {
		updates["notified_at"] = time.Now().UTC()
	}
	err := s.db.Model(&models.TransactionAlert{}).
		Where("id = ? AND status = ?", alertID, models.StatusPending).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("marking alert %d as %s: %w", alertID, status, err)
	}
	return nil
}

// PendingAlerts returns undelivered alerts, oldest first, for the retry
// sweep.
func (s *Store) PendingAlerts(limit int) ([]models.TransactionAlert, error) {
	var alerts []models.TransactionAlert
	err := s.db.Where("status = ?", models.StatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending alerts: %w", err)
	}
	return alerts, nil
}

// AlertsForUser returns the most recent alerts for the API feed.
func (s *Store) AlertsForUser(userID uint, limit int) ([]models.TransactionAlert, error) {
	var alerts []models.TransactionAlert
	err := s.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("listing alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}

// UnreadAlertCount counts alerts the user has not acknowledged.
func (s *Store) UnreadAlertCount(userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.TransactionAlert{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting unread alerts for user %d: %w", userID, err)
	}
	return count, nil
}

// MarkAlertsRead flags the given alerts as acknowledged, scoped to the
// owning user.
func (s *Store) MarkAlertsRead(userID uint, alertIDs []uint) error {
	err := s.db.Model(&models.TransactionAlert{}).
		Where("id IN ? AND user_id = ?", alertIDs, userID).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("marking alerts read for user %d: %w", userID, err)
	}
	return nil
}

// DeleteReadAlerts clears acknowledged alerts for a user.
func (s *Store) DeleteReadAlerts(userID uint) (int64, error) {
	result := s.db.Where("user_id = ? AND is_read = ?", userID, true).
		Delete(&models.TransactionAlert{})
	if result.Error != nil {
		return 0, fmt.Errorf("clearing read alerts for user %d: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}
