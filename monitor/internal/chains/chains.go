package chains

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Chain identifiers accepted on watchlist items.
const (
	ChainEthereum = "ethereum"
	ChainBSC      = "bsc"
	ChainBase     = "base"
	ChainSolana   = "solana"
)

// Error taxonomy for data source failures. RateLimited and Timeout are
// transient: the scanner leaves the checkpoint alone and the next pass
// retries the same range. InvalidAddress and UnsupportedChain are
// permanent per-item: the item is reported and skipped until corrected.
var (
	ErrRateLimited      = errors.New("data source rate limited")
	ErrTimeout          = errors.New("data source timeout")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// TokenTransfer carries the token leg of a transaction, when present.
type TokenTransfer struct {
	Address string
	Symbol  string
	Amount  string
}

// Transaction is the chain-agnostic representation of one on-chain
// transfer. Token == nil means a native transfer; otherwise the Value
// field may be "0" and the token leg is what matters. Transactions are
// transient: only alerts derived from them are persisted.
type Transaction struct {
	Hash        string
	Chain       string
	From        string
	To          string
	Value       string
	Token       *TokenTransfer
	BlockHeight int64
	BlockTime   time.Time
}

// IsTokenTransfer reports whether the transaction carries a token leg.
func (t *Transaction) IsTokenTransfer() bool {
	return t.Token != nil
}

// DataSource is the per-chain capability the scanner consumes.
type DataSource interface {
	// FetchSince returns transactions touching address with a position
	// strictly greater than checkpoint, oldest first. tokenFilter, when
	// non-empty, restricts results to transfers of that token contract.
	FetchSince(ctx context.Context, address string, checkpoint int64, tokenFilter string) ([]Transaction, error)

	// CurrentCheckpoint returns the chain tip position, used to initialize
	// new watchlist items without back-scanning history.
	CurrentCheckpoint(ctx context.Context, address string) (int64, error)

	// ValidateAddress reports whether address is well-formed for the chain.
	ValidateAddress(address string) error
}

// Registry maps chain names to their data source.
type Registry struct {
	sources map[string]DataSource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]DataSource)}
}

func (r *Registry) Register(chain string, source DataSource) {
	r.sources[chain] = source
}

// For resolves the data source for a chain. Unknown chains fail with
// ErrUnsupportedChain so the scanner can classify them as permanent.
func (r *Registry) For(chain string) (DataSource, error) {
	source, ok := r.sources[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	return source, nil
}

// Chains lists the registered chain names, sorted for stable output.
func (r *Registry) Chains() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortByHeight orders transactions oldest first so checkpoint advancement
// stays monotonic within an item.
func sortByHeight(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BlockHeight < txs[j].BlockHeight
	})
}

// classifyRequestErr maps transport-level failures onto the taxonomy.
func classifyRequestErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) && te.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
