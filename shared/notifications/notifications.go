package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"wallet-sentry/shared/env"
)

// Delivery failure classes. Retryable failures leave the alert pending so
// the next dispatch sweep tries again; permanent ones (blocked bot,
// deleted chat) mark it failed and stop retrying.
var (
	ErrRetryable = errors.New("telegram delivery failed, retryable")
	ErrPermanent = errors.New("telegram destination invalid")
)

var (
	bot             *tgbotapi.BotAPI
	isInitialized   bool
	telegramLimiter *rate.Limiter
)

const sendMaxRetries = 3

// InitTelegramBot connects the shared bot instance used by the notifier,
// the command listener and the operations log mirror.
func InitTelegramBot() error {
	if isInitialized && bot != nil {
		log.Println("INFO: Telegram bot already initialized.")
		return nil
	}

	isInitialized = false
	bot = nil
	telegramLimiter = nil

	botToken := env.TelegramBotToken
	if botToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN missing from env configuration")
	}

	var err error
	bot, err = tgbotapi.NewBotAPI(botToken)
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to initialize Telegram bot API: %w", err)
	}

	userInfo, err := bot.GetMe()
	if err != nil {
		bot = nil
		return fmt.Errorf("failed to verify bot token with GetMe API call: %w", err)
	}

	isInitialized = true
	// Telegram allows ~30 msg/sec globally but far less per chat; one
	// message per second keeps alert bursts under every limit.
	telegramLimiter = rate.NewLimiter(rate.Limit(1), 3)
	log.Printf("Telegram bot initialized successfully for @%s", userInfo.UserName)
	return nil
}

func GetBotInstance() *tgbotapi.BotAPI {
	if !isInitialized || bot == nil {
		log.Println("WARN: GetBotInstance called but bot is not initialized.")
	}
	return bot
}

// SendOperationsMessage delivers to the operations chat (log mirroring,
// startup notices). Best effort: failures are logged, never returned.
func SendOperationsMessage(message string) {
	if env.TelegramOpsChatID == 0 {
		return
	}
	notifier := &TelegramNotifier{}
	if err := notifier.Send(context.Background(), env.TelegramOpsChatID, message); err != nil {
		log.Printf("ERROR: Failed to deliver operations message: %v", err)
	}
}

// TelegramNotifier delivers rendered alert messages to a user's linked
// chat. It shares the package bot instance and global rate limiter.
type TelegramNotifier struct{}

func NewTelegramNotifier() *TelegramNotifier {
	return &TelegramNotifier{}
}

// Send pushes a MarkdownV2 message to the destination chat. In-call
// retries cover transient API hiccups; anything left over is classified
// as ErrRetryable or ErrPermanent for the dispatcher.
func (n *TelegramNotifier) Send(ctx context.Context, destination int64, text string) error {
	if destination == 0 {
		return fmt.Errorf("%w: destination chat id is 0", ErrPermanent)
	}
	if bot == nil {
		return fmt.Errorf("%w: telegram bot is not initialized", ErrRetryable)
	}

	if telegramLimiter != nil {
		if err := telegramLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter wait: %v", ErrRetryable, err)
		}
	}

	msg := tgbotapi.NewMessage(destination, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < sendMaxRetries; i++ {
		_, err := bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			if isPermanentAPIError(tgErr) {
				return fmt.Errorf("%w: chat %d: %s", ErrPermanent, destination, tgErr.Message)
			}
			if tgErr.Code == 429 {
				retryAfter := tgErr.RetryAfter
				if retryAfter <= 0 {
					retryAfter = 1
				}
				select {
				case <-time.After(time.Duration(retryAfter) * time.Second):
				case <-ctx.Done():
					return fmt.Errorf("%w: %v", ErrRetryable, ctx.Err())
				}
				continue
			}
		}

		if i < sendMaxRetries-1 {
			wait := time.Duration(math.Pow(2, float64(i))) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrRetryable, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w: chat %d after %d attempts: %v", ErrRetryable, destination, sendMaxRetries, lastErr)
}

// isPermanentAPIError recognizes destinations that will never work again:
// the user blocked the bot, deleted the chat, or the chat id is stale.
func isPermanentAPIError(tgErr *tgbotapi.Error) bool {
	if tgErr.Code == 403 {
		return true
	}
	if tgErr.Code == 400 {
		msg := strings.ToLower(tgErr.Message)
		return strings.Contains(msg, "chat not found") || strings.Contains(msg, "user is deactivated")
	}
	return false
}

// EscapeMarkdownV2 escapes the characters Telegram's MarkdownV2 parser
// treats as syntax.
func EscapeMarkdownV2(s string) string {
	charsToEscape := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	temp := s
	for _, char := range charsToEscape {
		temp = strings.ReplaceAll(temp, char, "\\"+char)
	}
	return temp
}
