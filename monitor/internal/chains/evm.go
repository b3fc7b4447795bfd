package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wallet-sentry/shared/logger"
	"wallet-sentry/shared/utils"
)

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const nativeDecimals = 18

// EVMConfig describes one Etherscan-family explorer endpoint. The same
// adapter serves ethereum, bsc and base; only the base URL, key and
// native symbol differ.
type EVMConfig struct {
	Chain        string
	APIURL       string
	APIKey       string
	NativeSymbol string
}

// evmDataSource fetches account activity from an Etherscan-compatible
// explorer API. The free tiers are aggressively rate limited, so every
// request goes through a shared limiter.
type evmDataSource struct {
	cfg       EVMConfig
	client    *http.Client
	limiter   *rate.Limiter
	appLogger *logger.Logger
}

func NewEVMDataSource(cfg EVMConfig, appLogger *logger.Logger) DataSource {
	return &evmDataSource{
		cfg:       cfg,
		client:    &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(4), 1),
		appLogger: appLogger,
	}
}

type evmTxEntry struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

type evmListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (s *evmDataSource) ValidateAddress(address string) error {
	if !evmAddressPattern.MatchString(address) {
		return fmt.Errorf("%w: %q is not a valid %s address", ErrInvalidAddress, address, s.cfg.Chain)
	}
	return nil
}

func (s *evmDataSource) FetchSince(ctx context.Context, address string, checkpoint int64, tokenFilter string) ([]Transaction, error) {
	if err := s.ValidateAddress(address); err != nil {
		return nil, err
	}

	var txs []Transaction

	// When a token filter is set only the tokentx endpoint matters; native
	// transfers cannot match a token contract.
	if tokenFilter == "" {
		native, err := s.fetchList(ctx, "txlist", address, checkpoint, "")
		if err != nil {
			return nil, err
		}
		txs = append(txs, native...)
	}

	tokens, err := s.fetchList(ctx, "tokentx", address, checkpoint, tokenFilter)
	if err != nil {
		return nil, err
	}
	txs = append(txs, tokens...)

	sortByHeight(txs)
	return txs, nil
}

func (s *evmDataSource) fetchList(ctx context.Context, action, address string, checkpoint int64, tokenFilter string) ([]Transaction, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", address)
	params.Set("startblock", strconv.FormatInt(checkpoint+1, 10))
	params.Set("endblock", "latest")
	params.Set("sort", "asc")
	if tokenFilter != "" {
		params.Set("contractaddress", tokenFilter)
	}
	if s.cfg.APIKey != "" {
		params.Set("apikey", s.cfg.APIKey)
	}

	body, err := s.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp evmListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s %s response: %w", s.cfg.Chain, action, err)
	}

	if resp.Status != "1" {
		// The explorer signals both "nothing found" and real failures
		// through status 0; only the result text tells them apart.
		var resultMsg string
		_ = json.Unmarshal(resp.Result, &resultMsg)
		switch {
		case strings.Contains(resp.Message, "No transactions found"), strings.Contains(resultMsg, "No transactions found"):
			return nil, nil
		case strings.Contains(resultMsg, "rate limit"), strings.Contains(resultMsg, "Max calls"):
			return nil, fmt.Errorf("%w: %s %s: %s", ErrRateLimited, s.cfg.Chain, action, resultMsg)
		case strings.Contains(resultMsg, "Invalid address"):
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, resultMsg)
		default:
			return nil, fmt.Errorf("%s %s request failed: %s %s", s.cfg.Chain, action, resp.Message, resultMsg)
		}
	}

	var entries []evmTxEntry
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return nil, fmt.Errorf("decoding %s %s result: %w", s.cfg.Chain, action, err)
	}

	txs := make([]Transaction, 0, len(entries))
	for _, entry := range entries {
		tx, err := s.normalize(entry, action == "tokentx")
		if err != nil {
			s.appLogger.Warn("Skipping unparseable explorer entry", "chain", s.cfg.Chain, "hash", entry.Hash, "error", err)
			continue
		}
		// startblock is inclusive of in-flight reorgs on some explorers;
		// enforce the contract here so callers never see old positions.
		if tx.BlockHeight <= checkpoint {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *evmDataSource) normalize(entry evmTxEntry, isToken bool) (Transaction, error) {
	height, err := strconv.ParseInt(entry.BlockNumber, 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("bad block number %q: %w", entry.BlockNumber, err)
	}

	var blockTime time.Time
	if ts, err := strconv.ParseInt(entry.TimeStamp, 10, 64); err == nil {
		blockTime = time.Unix(ts, 0).UTC()
	}

	tx := Transaction{
		Hash:        entry.Hash,
		Chain:       s.cfg.Chain,
		From:        strings.ToLower(entry.From),
		To:          strings.ToLower(entry.To),
		Value:       utils.FormatUnits(entry.Value, nativeDecimals),
		BlockHeight: height,
		BlockTime:   blockTime,
	}

	if isToken {
		decimals, err := strconv.Atoi(entry.TokenDecimal)
		if err != nil {
			decimals = 0
		}
		tx.Value = "0"
		tx.Token = &TokenTransfer{
			Address: strings.ToLower(entry.ContractAddress),
			Symbol:  entry.TokenSymbol,
			Amount:  utils.FormatUnits(entry.Value, decimals),
		}
	}
	return tx, nil
}

func (s *evmDataSource) CurrentCheckpoint(ctx context.Context, address string) (int64, error) {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_blockNumber")
	if s.cfg.APIKey != "" {
		params.Set("apikey", s.cfg.APIKey)
	}

	body, err := s.get(ctx, params)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding %s block number response: %w", s.cfg.Chain, err)
	}

	height, err := strconv.ParseInt(strings.TrimPrefix(resp.Result, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s block number %q: %w", s.cfg.Chain, resp.Result, err)
	}
	return height, nil
}

func (s *evmDataSource) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, classifyRequestErr(err)
	}

	reqURL := s.cfg.APIURL + "?" + params.Encode()
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
		return nil, fmt.Errorf("%w: %s returned HTTP 429", ErrRateLimited, s.cfg.Chain)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s explorer returned HTTP %d", s.cfg.Chain, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyRequestErr(err)
	}
	return body, nil
}
