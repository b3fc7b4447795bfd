package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"wallet-sentry/shared/logger"
)

const (
	lamportsPerSol   = 1_000_000_000
	solanaFetchLimit = 50
)

// SolanaConfig wires the Helius enhanced transactions API plus an RPC
// endpoint for slot queries.
type SolanaConfig struct {
	APIURL string
	APIKey string
	RPCURL string
}

// solanaDataSource reads enhanced (pre-parsed) transaction history from
// Helius and uses the slot as the checkpoint position.
type solanaDataSource struct {
	cfg       SolanaConfig
	client    *http.Client
	rpcClient *solrpc.Client
	limiter   *rate.Limiter
	appLogger *logger.Logger
}

func NewSolanaDataSource(cfg SolanaConfig, appLogger *logger.Logger) DataSource {
	return &solanaDataSource{
		cfg:       cfg,
		client:    &http.Client{Timeout: 15 * time.Second},
		rpcClient: solrpc.New(cfg.RPCURL),
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		appLogger: appLogger,
	}
}

type heliusTransfer struct {
	FromUserAccount string      `json:"fromUserAccount"`
	ToUserAccount   string      `json:"toUserAccount"`
	Amount          int64       `json:"amount"`
	Mint            string      `json:"mint"`
	TokenAmount     json.Number `json:"tokenAmount"`
}

type heliusTransaction struct {
	Signature       string           `json:"signature"`
	Slot            int64            `json:"slot"`
	Timestamp       int64            `json:"timestamp"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []heliusTransfer `json:"nativeTransfers"`
	TokenTransfers  []heliusTransfer `json:"tokenTransfers"`
}

func (s *solanaDataSource) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %q is not a valid solana address: %v", ErrInvalidAddress, address, err)
	}
	return nil
}

func (s *solanaDataSource) FetchSince(ctx context.Context, address string, checkpoint int64, tokenFilter string) ([]Transaction, error) {
	if err := s.ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, classifyRequestErr(err)
	}

	reqURL := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s&limit=%d",
		s.cfg.APIURL, address, s.cfg.APIKey, solanaFetchLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyRequestErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: helius returned HTTP 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helius returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var raw []heliusTransaction
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding helius response: %w", err)
	}

	txs := make([]Transaction, 0, len(raw))
	for _, entry := range raw {
		if entry.Slot <= checkpoint {
			continue
		}
		tx, ok := s.normalize(entry, address, tokenFilter)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}

	sortByHeight(txs)
	return txs, nil
}

// normalize picks the transfer leg that touches the watched address. Token
// transfers win over native ones because the native leg of an SPL transfer
// is usually just rent or fees.
func (s *solanaDataSource) normalize(entry heliusTransaction, address, tokenFilter string) (Transaction, bool) {
	tx := Transaction{
		Hash:        entry.Signature,
		Chain:       ChainSolana,
		BlockHeight: entry.Slot,
		BlockTime:   time.Unix(entry.Timestamp, 0).UTC(),
		Value:       "0",
	}

	for _, transfer := range entry.TokenTransfers {
		if transfer.FromUserAccount != address && transfer.ToUserAccount != address {
			continue
		}
		if tokenFilter != "" && transfer.Mint != tokenFilter {
			continue
		}
		tx.From = transfer.FromUserAccount
		tx.To = transfer.ToUserAccount
		tx.Token = &TokenTransfer{
			Address: transfer.Mint,
			Amount:  transfer.TokenAmount.String(),
		}
		return tx, true
	}

	if tokenFilter != "" {
		return Transaction{}, false
	}

	for _, transfer := range entry.NativeTransfers {
		if transfer.FromUserAccount != address && transfer.ToUserAccount != address {
			continue
		}
		tx.From = transfer.FromUserAccount
		tx.To = transfer.ToUserAccount
		tx.Value = formatLamports(transfer.Amount)
		return tx, true
	}

	return Transaction{}, false
}

func (s *solanaDataSource) CurrentCheckpoint(ctx context.Context, address string) (int64, error) {
	if err := s.ValidateAddress(address); err != nil {
		return 0, err
	}
	slot, err := s.rpcClient.GetSlot(ctx, solrpc.CommitmentFinalized)
	if err != nil {
		return 0, classifyRequestErr(err)
	}
	return int64(slot), nil
}

func formatLamports(lamports int64) string {
	whole := lamports / lamportsPerSol
	frac := lamports % lamportsPerSol
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	s := fmt.Sprintf("%d.%09d", whole, frac)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
