package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wallet-sentry/monitor/internal/chains"
	"wallet-sentry/monitor/internal/models"
	"wallet-sentry/shared/logger"
)

// Store is the persistence surface the scanner consumes.
type Store interface {
	ListWatchlistItems() ([]models.WatchlistItem, error)
	CreateAlertsIfAbsent(alerts []models.TransactionAlert) ([]models.TransactionAlert, error)
	AdvanceCheckpoint(itemID uint, checkpoint int64) error
	TouchLastChecked(itemID uint) error
	CleanupExpiredTrials(now time.Time) (int64, error)
}

// SourceResolver resolves a chain name to its data source. *chains.Registry
// satisfies it.
type SourceResolver interface {
	For(chain string) (chains.DataSource, error)
}

// AlertSink receives alerts that were durably persisted during a pass.
type AlertSink interface {
	Dispatch(ctx context.Context, alerts []models.TransactionAlert)
}

// Options tunes a scan pass.
type Options struct {
	Workers     int
	ItemTimeout time.Duration
	PassTimeout time.Duration
}

// ItemResult reports the outcome for one watchlist item within a pass.
type ItemResult struct {
	ItemID        uint   `json:"itemId"`
	Address       string `json:"address"`
	Chain         string `json:"chain"`
	AlertsCreated int    `json:"alertsCreated"`
	Checkpoint    int64  `json:"checkpoint"`
	Error         string `json:"error,omitempty"`
}

// PassResult summarizes a full monitoring pass. Success refers to the
// pass itself; individual item failures land in Results and never abort
// the rest of the pass.
type PassResult struct {
	Success        bool         `json:"success"`
	WalletsChecked int          `json:"walletsChecked"`
	AlertsCreated  int          `json:"alertsCreated"`
	CleanedUpItems int64        `json:"cleanedUpItems"`
	Results        []ItemResult `json:"results"`
	Errors         []string     `json:"errors,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	DurationMs     int64        `json:"durationMs"`
}

// Scanner runs monitoring passes over the watchlist: fetch new
// transactions per item, persist deduplicated alerts, advance checkpoints
// and hand the newly created alerts to the dispatcher.
type Scanner struct {
	store   Store
	sources SourceResolver
	sink    AlertSink
	opts    Options
	log     *logger.Logger

	runLock sync.Mutex
}

func New(store Store, sources SourceResolver, sink AlertSink, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 20 * time.Second
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 5 * time.Minute
	}
	return &Scanner{
		store:   store,
		sources: sources,
		sink:    sink,
		opts:    opts,
		log:     logger.GetLogger(),
	}
}

// RunPass executes one full monitoring pass. Passes are serialized; the
// checkpoint and status guards in the store make an accidental overlap
// harmless, but running them back to back just burns API quota.
func (s *Scanner) RunPass(ctx context.Context) (*PassResult, error) {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.PassTimeout)
	defer cancel()

	started := time.Now()
	result := &PassResult{Success: true, StartedAt: started.UTC()}

	cleaned, err := s.store.CleanupExpiredTrials(started.UTC())
	if err != nil {
		s.log.Warn("Trial cleanup failed, continuing pass", "error", err)
	}
	result.CleanedUpItems = cleaned

	items, err := s.store.ListWatchlistItems()
	if err != nil {
		s.log.Error("Failed to list watchlist items, aborting pass", "error", err)
		return nil, err
	}

	result.WalletsChecked = len(items)
	result.Results = make([]ItemResult, len(items))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result.Results[i] = s.scanItem(ctx, items[i])
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Items never handed out report the pass deadline.
			for j := i; j < len(items); j++ {
				result.Results[j] = ItemResult{
					ItemID:     items[j].ID,
					Address:    items[j].Address,
					Chain:      items[j].Chain,
					Checkpoint: items[j].Checkpoint,
					Error:      "pass deadline exceeded before item was scanned",
				}
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for _, item := range result.Results {
		result.AlertsCreated += item.AlertsCreated
		if item.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d (%s/%s): %s", item.ItemID, item.Chain, item.Address, item.Error))
		}
	}
	result.DurationMs = time.Since(started).Milliseconds()

	s.log.Info("Monitoring pass completed",
		"walletsChecked", result.WalletsChecked,
		"alertsCreated", result.AlertsCreated,
		"cleanedUpItems", result.CleanedUpItems,
		"durationMs", result.DurationMs)
	return result, nil
}

// scanItem processes one watchlist item. Every failure path leaves the
// checkpoint where it was so the next pass retries the same range; the
// last-checked timestamp is touched on every attempt regardless of
// outcome.
func (s *Scanner) scanItem(ctx context.Context, item models.WatchlistItem) ItemResult {
	res := ItemResult{
		ItemID:     item.ID,
		Address:    item.Address,
		Chain:      item.Chain,
		Checkpoint: item.Checkpoint,
	}
	defer func() {
		if err := s.store.TouchLastChecked(item.ID); err != nil {
			s.log.Debug("Failed to touch last-checked timestamp", "itemId", item.ID, "error", err)
		}
	}()

	source, err := s.sources.For(item.Chain)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()

	// First scan: anchor at the chain tip instead of replaying history.
	if item.Checkpoint == 0 {
		tip, err := source.CurrentCheckpoint(itemCtx, item.Address)
		if err != nil {
			res.Error = "initializing checkpoint: " + err.Error()
			return res
		}
		if err := s.store.AdvanceCheckpoint(item.ID, tip); err != nil {
			res.Error = "persisting initial checkpoint: " + err.Error()
			return res
		}
		res.Checkpoint = tip
		s.log.Info("Initialized watchlist item at chain tip",
			"itemId", item.ID, "chain", item.Chain, "checkpoint", tip)
		return res
	}

	txs, err := source.FetchSince(itemCtx, item.Address, item.Checkpoint, item.TokenAddress)
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("Fetch failed for watchlist item",
			"itemId", item.ID, "chain", item.Chain, "address", item.Address, "error", err)
		return res
	}
	if len(txs) == 0 {
		return res
	}

	candidates := make([]models.TransactionAlert, 0, len(txs))
	for i := range txs {
		candidates = append(candidates, buildAlert(item, &txs[i]))
	}

	created, err := s.store.CreateAlertsIfAbsent(Admit(candidates, nil))
	if err != nil {
		// Alerts not durably persisted: leave the checkpoint alone so the
		// range is re-fetched next pass. The unique index absorbs the
		// partial batch on replay.
		res.Error = "persisting alerts: " + err.Error()
		s.log.Error("Failed to persist alerts, checkpoint not advanced",
			"itemId", item.ID, "error", err)
		return res
	}
	res.AlertsCreated = len(created)

	newCheckpoint := item.Checkpoint
	for i := range txs {
		if txs[i].BlockHeight > newCheckpoint {
			newCheckpoint = txs[i].BlockHeight
		}
	}
	if newCheckpoint > item.Checkpoint {
		if err := s.store.AdvanceCheckpoint(item.ID, newCheckpoint); err != nil {
			res.Error = "advancing checkpoint: " + err.Error()
		} else {
			res.Checkpoint = newCheckpoint
		}
	}

	if len(created) > 0 {
		s.sink.Dispatch(ctx, created)
	}
	return res
}

// buildAlert normalizes one fetched transaction into its persisted form.
func buildAlert(item models.WatchlistItem, tx *chains.Transaction) models.TransactionAlert {
	alert := models.TransactionAlert{
		WatchlistItemID: item.ID,
		UserID:          item.UserID,
		WalletAddress:   item.Address,
		TransactionHash: tx.Hash,
		Chain:           item.Chain,
		FromAddress:     tx.From,
		ToAddress:       tx.To,
		Value:           tx.Value,
		BlockHeight:     tx.BlockHeight,
		Status:          models.StatusPending,
	}

	switch {
	case tx.IsTokenTransfer():
		alert.Type = models.AlertTypeTokenTransfer
		alert.TokenAddress = tx.Token.Address
		alert.TokenSymbol = tx.Token.Symbol
		alert.TokenAmount = tx.Token.Amount
	case strings.EqualFold(tx.From, item.Address):
		alert.Type = models.AlertTypeOutgoing
	default:
		alert.Type = models.AlertTypeIncoming
	}
	return alert
}
