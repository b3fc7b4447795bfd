package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	require.Equal(t, "1\\.5 ETH", EscapeMarkdownV2("1.5 ETH"))
	require.Equal(t, "a\\_b\\*c", EscapeMarkdownV2("a_b*c"))
	require.Equal(t, "\\[link\\]\\(url\\)", EscapeMarkdownV2("[link](url)"))
	require.Equal(t, "plain", EscapeMarkdownV2("plain"))
}

func TestEscapeMarkdownV2EscapesBackslashFirst(t *testing.T) {
	// A literal backslash must not re-escape the escapes added after it.
	require.Equal(t, "\\\\\\.", EscapeMarkdownV2("\\."))
}

func TestSendWithoutBotIsRetryable(t *testing.T) {
	notifier := NewTelegramNotifier()
	err := notifier.Send(context.Background(), 1234, "hello")
	require.ErrorIs(t, err, ErrRetryable)
}

func TestSendToZeroDestinationIsPermanent(t *testing.T) {
	notifier := NewTelegramNotifier()
	err := notifier.Send(context.Background(), 0, "hello")
	require.ErrorIs(t, err, ErrPermanent)
}
