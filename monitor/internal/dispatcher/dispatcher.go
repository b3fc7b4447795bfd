package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"wallet-sentry/monitor/internal/models"
	"wallet-sentry/shared/config"
	"wallet-sentry/shared/logger"
	"wallet-sentry/shared/notifications"
	"wallet-sentry/shared/utils"
)

// Store is the persistence surface the dispatcher consumes.
type Store interface {
	GetUserPreferences(userID uint) (*models.UserPreferences, error)
	MarkNotified(alertID uint, status string) error
	PendingAlerts(limit int) ([]models.TransactionAlert, error)
}

// Notifier delivers one rendered message to a destination chat.
type Notifier interface {
	Send(ctx context.Context, destination int64, text string) error
}

// Alert categories, matched against the user's notification toggles.
const (
	CategoryWatchlist = "watchlist"
	CategoryWhale     = "whale"
)

const sweepBatchSize = 100

// Dispatcher routes persisted alerts to their owner's Telegram chat.
// Every outcome is recorded through MarkNotified, whose pending-status
// guard is what keeps delivery at-most-once even if a scan pass and the
// retry sweep race over the same alert.
type Dispatcher struct {
	store          Store
	notifier       Notifier
	whaleThreshold float64
	log            *logger.Logger
}

func New(store Store, notifier Notifier, whaleThreshold float64) *Dispatcher {
	return &Dispatcher{
		store:          store,
		notifier:       notifier,
		whaleThreshold: whaleThreshold,
		log:            logger.GetLogger(),
	}
}

// Dispatch attempts delivery for each alert. Alerts whose delivery fails
// transiently stay pending and are picked up by the next sweep; nothing
// here ever aborts the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.TransactionAlert) {
	for i := range alerts {
		d.dispatchOne(ctx, &alerts[i])
	}
}

// SweepPending retries alerts still pending, oldest first.
func (d *Dispatcher) SweepPending(ctx context.Context) {
	alerts, err := d.store.PendingAlerts(sweepBatchSize)
	if err != nil {
		d.log.Error("Failed to load pending alerts for sweep", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}
	d.log.Debug("Sweeping pending alerts", "count", len(alerts))
	d.Dispatch(ctx, alerts)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, alert *models.TransactionAlert) {
	prefs, err := d.store.GetUserPreferences(alert.UserID)
	if err != nil {
		// Preferences unavailable is transient; leave the alert pending.
		d.log.Warn("Failed to load preferences, alert left pending",
			"alertId", alert.ID, "userId", alert.UserID, "error", err)
		return
	}

	category := d.Categorize(alert)
	if !categoryEnabled(prefs.Settings, category) || prefs.Destination == 0 {
		if err := d.store.MarkNotified(alert.ID, models.StatusSuppressed); err != nil {
			d.log.Warn("Failed to mark alert suppressed", "alertId", alert.ID, "error", err)
		}
		return
	}

	err = d.notifier.Send(ctx, prefs.Destination, d.renderMessage(alert, category))
	switch {
	case err == nil:
		if err := d.store.MarkNotified(alert.ID, models.StatusSent); err != nil {
			d.log.Error("Alert delivered but status update failed", "alertId", alert.ID, "error", err)
		}
	case errors.Is(err, notifications.ErrPermanent):
		d.log.Warn("Alert destination permanently unreachable",
			"alertId", alert.ID, "userId", alert.UserID, "error", err)
		if err := d.store.MarkNotified(alert.ID, models.StatusFailed); err != nil {
			d.log.Warn("Failed to mark alert failed", "alertId", alert.ID, "error", err)
		}
	default:
		// Retryable: stays pending for the next sweep.
		d.log.Warn("Alert delivery failed, will retry",
			"alertId", alert.ID, "userId", alert.UserID, "error", err)
	}
}

// Categorize classifies an alert for the per-category toggles. A native
// transfer whose value clears the whale threshold is a whale alert;
// everything else is a plain watchlist alert.
func (d *Dispatcher) Categorize(alert *models.TransactionAlert) string {
	if alert.Type == models.AlertTypeTokenTransfer {
		return CategoryWatchlist
	}
	value, err := strconv.ParseFloat(alert.Value, 64)
	if err == nil && d.whaleThreshold > 0 && value >= d.whaleThreshold {
		return CategoryWhale
	}
	return CategoryWatchlist
}

func categoryEnabled(settings models.NotificationSettings, category string) bool {
	switch category {
	case CategoryWhale:
		return settings.WhaleAlerts
	case CategoryWatchlist:
		return settings.WatchlistAlerts
	default:
		return false
	}
}

// renderMessage builds the MarkdownV2 alert text.
func (d *Dispatcher) renderMessage(alert *models.TransactionAlert, category string) string {
	var sb strings.Builder

	if category == CategoryWhale {
		sb.WriteString("🐋 *Whale Alert* 🐋\n\n")
	} else {
		sb.WriteString("🔔 *Watchlist Alert*\n\n")
	}

	sb.WriteString(fmt.Sprintf("*Wallet:* `%s`\n", notifications.EscapeMarkdownV2(utils.ShortAddress(alert.WalletAddress))))
	sb.WriteString(fmt.Sprintf("*Chain:* %s\n", notifications.EscapeMarkdownV2(chainDisplayName(alert.Chain))))
	sb.WriteString(fmt.Sprintf("*Type:* %s\n", notifications.EscapeMarkdownV2(typeDisplayName(alert.Type))))

	if alert.FromAddress != "" {
		sb.WriteString(fmt.Sprintf("*From:* `%s`\n", notifications.EscapeMarkdownV2(utils.ShortAddress(alert.FromAddress))))
	}
	if alert.ToAddress != "" {
		sb.WriteString(fmt.Sprintf("*To:* `%s`\n", notifications.EscapeMarkdownV2(utils.ShortAddress(alert.ToAddress))))
	}

	if alert.Type == models.AlertTypeTokenTransfer {
		symbol := alert.TokenSymbol
		if symbol == "" {
			symbol = utils.ShortAddress(alert.TokenAddress)
		}
		sb.WriteString(fmt.Sprintf("*Amount:* %s %s\n",
			notifications.EscapeMarkdownV2(alert.TokenAmount),
			notifications.EscapeMarkdownV2(symbol)))
	} else {
		symbol := nativeSymbol(alert.Chain)
		sb.WriteString(fmt.Sprintf("*Value:* %s %s\n",
			notifications.EscapeMarkdownV2(alert.Value),
			notifications.EscapeMarkdownV2(symbol)))
	}

	if link := explorerTxLink(alert.Chain, alert.TransactionHash); link != "" {
		sb.WriteString(fmt.Sprintf("\n[View Transaction](%s)", link))
	} else {
		sb.WriteString(fmt.Sprintf("\n*Tx:* `%s`", notifications.EscapeMarkdownV2(utils.ShortAddress(alert.TransactionHash))))
	}
	return sb.String()
}

func chainDisplayName(chain string) string {
	switch chain {
	case "ethereum":
		return "Ethereum"
	case "bsc":
		return "BNB Smart Chain"
	case "base":
		return "Base"
	case "solana":
		return "Solana"
	default:
		return chain
	}
}

func typeDisplayName(alertType string) string {
	switch alertType {
	case models.AlertTypeIncoming:
		return "Incoming Transfer"
	case models.AlertTypeOutgoing:
		return "Outgoing Transfer"
	case models.AlertTypeTokenTransfer:
		return "Token Transfer"
	default:
		return alertType
	}
}

func nativeSymbol(chain string) string {
	if chainCfg, ok := config.GetChainConfig(chain); ok && chainCfg.NativeSymbol != "" {
		return chainCfg.NativeSymbol
	}
	return ""
}

// explorerTxLink builds the explorer URL for a transaction. MarkdownV2
// link targets only need ')' and '\' escaped.
func explorerTxLink(chain, hash string) string {
	chainCfg, ok := config.GetChainConfig(chain)
	if !ok || chainCfg.ExplorerURL == "" {
		return ""
	}
	link := strings.TrimRight(chainCfg.ExplorerURL, "/") + "/tx/" + hash
	link = strings.ReplaceAll(link, "\\", "\\\\")
	return strings.ReplaceAll(link, ")", "\\)")
}
