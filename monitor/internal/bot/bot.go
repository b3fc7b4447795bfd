package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wallet-sentry/monitor/database"
	"wallet-sentry/monitor/internal/chains"
	"wallet-sentry/shared/logger"
	"wallet-sentry/shared/notifications"
)

var (
	appLogger   *logger.Logger
	botInstance *tgbotapi.BotAPI
	store       *database.Store
	sources     *chains.Registry
)

// InitializeBot wires the command listener to the shared bot instance,
// the store and the chain registry.
func InitializeBot(logInstance *logger.Logger, s *database.Store, registry *chains.Registry) error {
	if logInstance == nil {
		fmt.Println("FATAL ERROR: InitializeBot requires a non-nil logger instance")
		return fmt.Errorf("logger instance provided to InitializeBot is nil")
	}
	appLogger = logInstance
	store = s
	sources = registry

	botInstance = notifications.GetBotInstance()
	if botInstance == nil {
		appLogger.Error("Could not retrieve initialized Telegram bot instance from notifications package. Bot may not function.")
		return fmt.Errorf("failed to get tgbotapi bot instance")
	}
	appLogger.Info("Telegram bot command services initialized.")
	return nil
}

// StartListening consumes the update channel until the context is
// cancelled. Commands are only accepted in private chats; alerts are
// personal and group chats cannot own a watchlist.
func StartListening(ctx context.Context) {
	if appLogger == nil {
		fmt.Println("ERROR: Logger not initialized for bot listener. Cannot start.")
		return
	}
	if botInstance == nil {
		appLogger.Warn("Bot API instance not available. Cannot start command listener.")
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botInstance.GetUpdatesChan(u)
	appLogger.Info("Listening for Telegram commands...")

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if !update.Message.IsCommand() {
				continue
			}

			appLogger.Debug("Received command message",
				"chatID", update.Message.Chat.ID,
				"fromUser", update.Message.From.UserName,
				"text", update.Message.Text)

			go HandleCommand(update)

		case <-ctx.Done():
			appLogger.Info("Context cancelled. Stopping Telegram listener.")
			return
		}
	}
}

// SendReply delivers a plain-text reply to a chat, best effort.
func SendReply(chatID int64, text string) {
	if botInstance == nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := botInstance.Send(msg); err != nil {
		appLogger.Warn("Failed to send bot reply", "chatID", chatID, "error", err)
	}
}
