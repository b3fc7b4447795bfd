package bot

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"wallet-sentry/monitor/database"
	"wallet-sentry/monitor/internal/models"
	"wallet-sentry/shared/utils"
)

const helpText = `Wallet Sentry commands:

/watch <chain> <address> [label] - monitor a wallet
/unwatch <chain> <address> - stop monitoring a wallet
/list - show your watchlist
/alerts - show your latest alerts
/mute <watchlist|whale> - disable an alert category
/unmute <watchlist|whale> - enable an alert category
/help - this message

Supported chains: ethereum, bsc, base, solana`

func HandleCommand(update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID

	appLogger.Info("Processing command",
		"command", command,
		"args", args,
		"chatID", chatID,
		"user", update.Message.From.UserName)

	user, err := store.GetOrCreateTelegramUser(update.Message.From.ID, chatID, update.Message.From.UserName)
	if err != nil {
		appLogger.Error("Failed to resolve telegram user", "telegramUserID", update.Message.From.ID, "error", err)
		SendReply(chatID, "Something went wrong, please try again.")
		return
	}

	switch command {
	case "start":
		SendReply(chatID, "Welcome to Wallet Sentry! Your chat is now linked.\n\n"+helpText)
	case "help":
		SendReply(chatID, helpText)
	case "watch":
		handleWatchCommand(user, chatID, args)
	case "unwatch":
		handleUnwatchCommand(user, chatID, args)
	case "list":
		handleListCommand(user, chatID)
	case "alerts":
		handleAlertsCommand(user, chatID)
	case "mute":
		handleToggleCommand(user, chatID, args, false)
	case "unmute":
		handleToggleCommand(user, chatID, args, true)
	default:
		appLogger.Warn("Unknown command received", "command", command)
		SendReply(chatID, fmt.Sprintf("Unknown command: /%s\nUse /help to see what I can do.", command))
	}
}

func handleWatchCommand(user *models.User, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		SendReply(chatID, "Usage: /watch <chain> <address> [label]")
		return
	}
	chain := strings.ToLower(fields[0])
	address := fields[1]
	label := strings.Join(fields[2:], " ")

	source, err := sources.For(chain)
	if err != nil {
		SendReply(chatID, fmt.Sprintf("Unsupported chain %q. Supported: %s", chain, strings.Join(sources.Chains(), ", ")))
		return
	}
	if err := source.ValidateAddress(address); err != nil {
		SendReply(chatID, fmt.Sprintf("That does not look like a valid %s address.", chain))
		return
	}

	item := models.WatchlistItem{
		UserID:  user.ID,
		Address: address,
		Chain:   chain,
		Label:   label,
	}
	if err := store.AddWatchlistItem(&item); err != nil {
		if errors.Is(err, database.ErrDuplicateWatchlistItem) {
			SendReply(chatID, "That wallet is already on your watchlist.")
			return
		}
		appLogger.Error("Failed to add watchlist item from bot", "userId", user.ID, "error", err)
		SendReply(chatID, "Could not add the wallet, please try again.")
		return
	}
	SendReply(chatID, fmt.Sprintf("Now watching %s on %s. You will be alerted on new activity.", utils.ShortAddress(address), chain))
}

func handleUnwatchCommand(user *models.User, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		SendReply(chatID, "Usage: /unwatch <chain> <address>")
		return
	}
	chain := strings.ToLower(fields[0])
	address := fields[1]

	err := store.RemoveWatchlistItemByAddress(user.ID, chain, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			SendReply(chatID, "That wallet is not on your watchlist.")
			return
		}
		appLogger.Error("Failed to remove watchlist item from bot", "userId", user.ID, "error", err)
		SendReply(chatID, "Could not remove the wallet, please try again.")
		return
	}
	SendReply(chatID, fmt.Sprintf("Stopped watching %s on %s.", utils.ShortAddress(address), chain))
}

func handleListCommand(user *models.User, chatID int64) {
	items, err := store.WatchlistForUser(user.ID)
	if err != nil {
		appLogger.Error("Failed to list watchlist from bot", "userId", user.ID, "error", err)
		SendReply(chatID, "Could not load your watchlist, please try again.")
		return
	}
	if len(items) == 0 {
		SendReply(chatID, "Your watchlist is empty. Add a wallet with /watch <chain> <address>.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Your watchlist (%d):\n", len(items)))
	for _, item := range items {
		line := fmt.Sprintf("- %s on %s", utils.ShortAddress(item.Address), item.Chain)
		if item.Label != "" {
			line += fmt.Sprintf(" (%s)", item.Label)
		}
		if item.TokenSymbol != "" {
			line += fmt.Sprintf(" [token: %s]", item.TokenSymbol)
		}
		sb.WriteString(line + "\n")
	}
	SendReply(chatID, sb.String())
}

func handleAlertsCommand(user *models.User, chatID int64) {
	alerts, err := store.AlertsForUser(user.ID, 10)
	if err != nil {
		appLogger.Error("Failed to list alerts from bot", "userId", user.ID, "error", err)
		SendReply(chatID, "Could not load your alerts, please try again.")
		return
	}
	if len(alerts) == 0 {
		SendReply(chatID, "No alerts yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your latest alerts:\n")
	for _, alert := range alerts {
		amount := alert.Value
		symbol := ""
		if alert.Type == models.AlertTypeTokenTransfer {
			amount = alert.TokenAmount
			symbol = " " + alert.TokenSymbol
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s %s%s on %s (%s)\n",
			alert.Type, utils.ShortAddress(alert.WalletAddress), amount, symbol,
			alert.Chain, utils.ShortAddress(alert.TransactionHash)))
	}
	SendReply(chatID, sb.String())
}

func handleToggleCommand(user *models.User, chatID int64, args string, enabled bool) {
	category := strings.ToLower(strings.TrimSpace(args))
	if category == "" {
		SendReply(chatID, "Usage: /mute <watchlist|whale> or /unmute <watchlist|whale>")
		return
	}

	if err := store.SetNotificationCategory(user.ID, category, enabled); err != nil {
		SendReply(chatID, "Unknown category. Use: watchlist, whale, market or summary.")
		return
	}
	state := "muted"
	if enabled {
		state = "unmuted"
	}
	SendReply(chatID, fmt.Sprintf("Alert category %q %s.", category, state))
}
