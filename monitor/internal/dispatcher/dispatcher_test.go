package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"wallet-sentry/monitor/internal/models"
	"wallet-sentry/shared/logger"
	"wallet-sentry/shared/notifications"
)

func TestMain(m *testing.M) {
	logger.NewLogger(logger.Config{Level: "error", Environment: "test"})
	os.Exit(m.Run())
}

type mockDispatchStore struct {
	prefs      map[uint]*models.UserPreferences
	prefsErr   error
	statuses   map[uint]string
	pending    []models.TransactionAlert
	pendingErr error
}

func newMockDispatchStore() *mockDispatchStore {
	return &mockDispatchStore{
		prefs:    make(map[uint]*models.UserPreferences),
		statuses: make(map[uint]string),
	}
}

func (m *mockDispatchStore) GetUserPreferences(userID uint) (*models.UserPreferences, error) {
	if m.prefsErr != nil {
		return nil, m.prefsErr
	}
	prefs, ok := m.prefs[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return prefs, nil
}

func (m *mockDispatchStore) MarkNotified(alertID uint, status string) error {
	// Mirrors the store's one-way transition guard.
	if current, ok := m.statuses[alertID]; ok && current != models.StatusPending {
		return nil
	}
	m.statuses[alertID] = status
	return nil
}

func (m *mockDispatchStore) PendingAlerts(limit int) ([]models.TransactionAlert, error) {
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	var out []models.TransactionAlert
	for _, alert := range m.pending {
		if m.statuses[alert.ID] == models.StatusPending {
			out = append(out, alert)
		}
	}
	return out, nil
}

type mockNotifier struct {
	sendFn func(ctx context.Context, destination int64, text string) error
	sent   []string
	dests  []int64
}

func (m *mockNotifier) Send(ctx context.Context, destination int64, text string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, destination, text); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, text)
	m.dests = append(m.dests, destination)
	return nil
}

func allOn() models.NotificationSettings {
	return models.NotificationSettings{WatchlistAlerts: true, WhaleAlerts: true, DailySummary: true}
}

func pendingAlert(id, userID uint, alertType, value string) models.TransactionAlert {
	return models.TransactionAlert{
		ID:              id,
		UserID:          userID,
		WalletAddress:   "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TransactionHash: fmt.Sprintf("0xhash%d", id),
		Chain:           "ethereum",
		Type:            alertType,
		FromAddress:     "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		ToAddress:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Value:           value,
		Status:          models.StatusPending,
	}
}

func TestDispatchMarksSentOnDelivery(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{UserID: 7, Destination: 1234, Settings: allOn()}
	notifier := &mockNotifier{}
	d := New(store, notifier, 100)

	d.Dispatch(context.Background(), []models.TransactionAlert{pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")})

	require.Equal(t, models.StatusSent, store.statuses[1])
	require.Len(t, notifier.sent, 1)
	require.Equal(t, []int64{1234}, notifier.dests)
	require.Contains(t, notifier.sent[0], "Watchlist Alert")
}

func TestDispatchSuppressesWhenCategoryDisabled(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{
		UserID:      7,
		Destination: 1234,
		Settings:    models.NotificationSettings{WatchlistAlerts: false, WhaleAlerts: true},
	}
	notifier := &mockNotifier{}
	d := New(store, notifier, 100)

	d.Dispatch(context.Background(), []models.TransactionAlert{pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")})

	require.Equal(t, models.StatusSuppressed, store.statuses[1])
	require.Empty(t, notifier.sent)
}

func TestDispatchSuppressesWithoutLinkedChat(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{UserID: 7, Destination: 0, Settings: allOn()}
	notifier := &mockNotifier{}
	d := New(store, notifier, 100)

	d.Dispatch(context.Background(), []models.TransactionAlert{pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")})

	require.Equal(t, models.StatusSuppressed, store.statuses[1])
	require.Empty(t, notifier.sent)
}

func TestDispatchLeavesPendingOnRetryableFailure(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{UserID: 7, Destination: 1234, Settings: allOn()}
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, destination int64, text string) error {
			return fmt.Errorf("%w: network blip", notifications.ErrRetryable)
		},
	}
	d := New(store, notifier, 100)

	d.Dispatch(context.Background(), []models.TransactionAlert{pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")})

	_, marked := store.statuses[1]
	require.False(t, marked, "retryable failures must leave the alert pending")
}

func TestDispatchMarksFailedOnPermanentFailure(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{UserID: 7, Destination: 1234, Settings: allOn()}
	notifier := &mockNotifier{
		sendFn: func(ctx context.Context, destination int64, text string) error {
			return fmt.Errorf("%w: chat not found", notifications.ErrPermanent)
		},
	}
	d := New(store, notifier, 100)

	d.Dispatch(context.Background(), []models.TransactionAlert{pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")})

	require.Equal(t, models.StatusFailed, store.statuses[1])
}

func TestSweepRetriesExactlyOnceAfterSuccess(t *testing.T) {
	store := newMockDispatchStore()
	store.prefs[7] = &models.UserPreferences{UserID: 7, Destination: 1234, Settings: allOn()}
	alert := pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")
	store.pending = []models.TransactionAlert{alert}
	store.statuses[1] = models.StatusPending

	notifier := &mockNotifier{}
	d := New(store, notifier, 100)

	d.SweepPending(context.Background())
	require.Equal(t, models.StatusSent, store.statuses[1])
	require.Len(t, notifier.sent, 1)

	// A second sweep finds nothing pending once the status guard has
	// flipped the alert to sent.
	d.SweepPending(context.Background())
	require.Equal(t, models.StatusSent, store.statuses[1])
	require.Len(t, notifier.sent, 1)
}

func TestCategorizeWhaleThreshold(t *testing.T) {
	d := New(newMockDispatchStore(), &mockNotifier{}, 100)

	whale := pendingAlert(1, 7, models.AlertTypeIncoming, "250")
	require.Equal(t, CategoryWhale, d.Categorize(&whale))

	small := pendingAlert(2, 7, models.AlertTypeIncoming, "0.5")
	require.Equal(t, CategoryWatchlist, d.Categorize(&small))

	exact := pendingAlert(3, 7, models.AlertTypeOutgoing, "100")
	require.Equal(t, CategoryWhale, d.Categorize(&exact))

	token := pendingAlert(4, 7, models.AlertTypeTokenTransfer, "0")
	token.TokenAmount = "9999999"
	require.Equal(t, CategoryWatchlist, d.Categorize(&token))
}

func TestRenderMessageEscapesMarkdown(t *testing.T) {
	d := New(newMockDispatchStore(), &mockNotifier{}, 100)
	alert := pendingAlert(1, 7, models.AlertTypeIncoming, "1.5")

	text := d.renderMessage(&alert, CategoryWatchlist)
	require.Contains(t, text, "🔔 *Watchlist Alert*")
	require.Contains(t, text, "1\\.5")
	require.Contains(t, text, "Incoming Transfer")
}

func TestRenderMessageWhaleHeader(t *testing.T) {
	d := New(newMockDispatchStore(), &mockNotifier{}, 100)
	alert := pendingAlert(1, 7, models.AlertTypeIncoming, "500")

	text := d.renderMessage(&alert, CategoryWhale)
	require.Contains(t, text, "🐋 *Whale Alert* 🐋")
}
