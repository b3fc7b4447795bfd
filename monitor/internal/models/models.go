package models

import "time"

// Alert delivery states. NotifiedAt is only ever set when the status
// transitions to StatusSent, so it stays the single source of truth for
// "the user has received this".
const (
	StatusPending    = "pending"
	StatusSent       = "sent"
	StatusSuppressed = "suppressed"
	StatusFailed     = "failed"
)

// Alert types for the normalized transaction direction.
const (
	AlertTypeIncoming      = "incoming"
	AlertTypeOutgoing      = "outgoing"
	AlertTypeTokenTransfer = "token-transfer"
)

// NotificationSettings holds the per-category toggles a user controls from
// the bot or the settings API. Embedded into User with a notify_ prefix.
type NotificationSettings struct {
	WatchlistAlerts bool `gorm:"default:true" json:"watchlistAlerts"`
	WhaleAlerts     bool `gorm:"default:true" json:"whaleAlerts"`
	MarketAlerts    bool `gorm:"default:false" json:"marketAlerts"`
	DailySummary    bool `gorm:"default:true" json:"dailySummary"`
}

// User owns watchlist items and receives alerts on their linked Telegram chat.
type User struct {
	ID               uint                 `gorm:"primaryKey" json:"id"`
	// Pointer so unlinked accounts store NULL; a unique index on an empty
	// string would collide on the second bot-created user.
	Email            *string              `gorm:"uniqueIndex" json:"email,omitempty"`
	TelegramUserID   int64                `gorm:"uniqueIndex" json:"telegramUserId,omitempty"`
	TelegramChatID   int64                `json:"telegramChatId,omitempty"`
	TelegramUsername string               `json:"telegramUsername,omitempty"`
	IsPremium        bool                 `gorm:"default:false" json:"isPremium"`
	TrialEndsAt      *time.Time           `json:"trialEndsAt,omitempty"`
	Settings         NotificationSettings `gorm:"embedded;embeddedPrefix:notify_" json:"settings"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time            `gorm:"autoUpdateTime" json:"updatedAt"`
}

// WatchlistItem is one (user, address, chain, optional token) monitor.
// Checkpoint is the last chain position (block height or slot) that was
// fully processed; only the scanner moves it, and only after the alerts
// for that range are durably persisted. The zero value means the item has
// never been scanned and gets initialized to the chain tip instead of
// back-scanning history.
type WatchlistItem struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index;uniqueIndex:idx_watchlist_identity" json:"userId"`
	Address       string     `gorm:"not null;uniqueIndex:idx_watchlist_identity" json:"address"`
	Chain         string     `gorm:"not null;uniqueIndex:idx_watchlist_identity" json:"chain"`
	TokenAddress  string     `gorm:"default:'';uniqueIndex:idx_watchlist_identity" json:"tokenAddress,omitempty"`
	TokenSymbol   string     `json:"tokenSymbol,omitempty"`
	Label         string     `json:"label,omitempty"`
	Checkpoint    int64      `gorm:"not null;default:0" json:"checkpoint"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`

	User User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TransactionAlert is the persisted, user-facing record of one detected
// transaction. The unique index on (watchlist_item_id, transaction_hash)
// is what makes re-scans and concurrent passes idempotent: inserts go
// through ON CONFLICT DO NOTHING and a conflict is not an error.
type TransactionAlert struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	WatchlistItemID uint       `gorm:"not null;index;uniqueIndex:idx_alert_identity" json:"watchlistItemId"`
	UserID          uint       `gorm:"not null;index" json:"userId"`
	WalletAddress   string     `gorm:"not null" json:"walletAddress"`
	TransactionHash string     `gorm:"not null;uniqueIndex:idx_alert_identity" json:"transactionHash"`
	Chain           string     `gorm:"not null" json:"chain"`
	Type            string     `gorm:"not null" json:"type"`
	FromAddress     string     `json:"fromAddress,omitempty"`
	ToAddress       string     `json:"toAddress,omitempty"`
	Value           string     `json:"value,omitempty"`
	TokenAddress    string     `json:"tokenAddress,omitempty"`
	TokenSymbol     string     `json:"tokenSymbol,omitempty"`
	TokenAmount     string     `json:"tokenAmount,omitempty"`
	BlockHeight     int64      `json:"blockHeight"`
	Status          string     `gorm:"not null;default:'pending';index" json:"status"`
	NotifiedAt      *time.Time `json:"notifiedAt,omitempty"`
	IsRead          bool       `gorm:"default:false" json:"isRead"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`

	WatchlistItem WatchlistItem `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// UserPreferences is the read-only projection the dispatcher consumes:
// where to deliver and which categories are enabled.
type UserPreferences struct {
	UserID      uint
	Destination int64
	Settings    NotificationSettings
}
