package database

import (
	"fmt"

	"wallet-sentry/monitor/internal/models"
)

// GetUserPreferences loads the destination chat and category toggles the
// dispatcher filters on.
func (s *Store) GetUserPreferences(userID uint) (*models.UserPreferences, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("loading user %d: %w", userID, err)
	}
	return &models.UserPreferences{
		UserID:      user.ID,
		Destination: user.TelegramChatID,
		Settings:    user.Settings,
	}, nil
}

// GetOrCreateTelegramUser links a Telegram account to a user record,
// creating it on first contact and refreshing the chat id and username on
// every /start so a re-created chat keeps working.
func (s *Store) GetOrCreateTelegramUser(telegramUserID, chatID int64, username string) (*models.User, error) {
	var user models.User
	result := s.db.Where(&models.User{TelegramUserID: telegramUserID}).
		Attrs(&models.User{
			TelegramChatID:   chatID,
			TelegramUsername: username,
			Settings: models.NotificationSettings{
				WatchlistAlerts: true,
				WhaleAlerts:     true,
				DailySummary:    true,
			},
		}).
		FirstOrCreate(&user)
	if result.Error != nil {
		return nil, fmt.Errorf("get-or-create telegram user %d: %w", telegramUserID, result.Error)
	}

	if user.TelegramChatID != chatID || user.TelegramUsername != username {
		user.TelegramChatID = chatID
		user.TelegramUsername = username
		if err := s.db.Save(&user).Error; err != nil {
			return nil, fmt.Errorf("updating telegram link for user %d: %w", user.ID, err)
		}
	}
	return &user, nil
}

// UserByTelegramID resolves a Telegram account to its user record.
func (s *Store) UserByTelegramID(telegramUserID int64) (*models.User, error) {
	var user models.User
	if err := s.db.Where("telegram_user_id = ?", telegramUserID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetNotificationCategory flips one category toggle for a user.
func (s *Store) SetNotificationCategory(userID uint, category string, enabled bool) error {
	column := ""
	switch category {
	case "watchlist":
		column = "notify_watchlist_alerts"
	case "whale":
		column = "notify_whale_alerts"
	case "market":
		column = "notify_market_alerts"
	case "summary":
		column = "notify_daily_summary"
	default:
		return fmt.Errorf("unknown notification category %q", category)
	}

	err := s.db.Model(&models.User{}).Where("id = ?", userID).Update(column, enabled).Error
	if err != nil {
		return fmt.Errorf("updating %s for user %d: %w", column, userID, err)
	}
	return nil
}
