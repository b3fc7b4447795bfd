package chains

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"wallet-sentry/shared/logger"
)

const (
	solAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	solPeer    = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	solMint    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newTestSolanaSource(t *testing.T, handler http.HandlerFunc) DataSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewSolanaDataSource(SolanaConfig{
		APIURL: server.URL,
		APIKey: "test-key",
		RPCURL: server.URL,
	}, logger.GetLogger())
}

func TestSolanaValidateAddress(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {})

	require.NoError(t, source.ValidateAddress(solAddress))
	require.ErrorIs(t, source.ValidateAddress("0xdeadbeef"), ErrInvalidAddress)
	require.ErrorIs(t, source.ValidateAddress(""), ErrInvalidAddress)
}

func TestSolanaFetchSinceNativeTransfers(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/v0/addresses/"+solAddress+"/transactions")
		require.Equal(t, "test-key", r.URL.Query().Get("api-key"))
		fmt.Fprintf(w, `[
			{"signature":"sig2","slot":250000002,"timestamp":1700000100,"feePayer":"%s",
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":1500000000}],
			 "tokenTransfers":[]},
			{"signature":"sig1","slot":250000001,"timestamp":1700000000,"feePayer":"%s",
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":250000000}],
			 "tokenTransfers":[]}
		]`, solPeer, solPeer, solAddress, solAddress, solAddress, solPeer)
	})

	txs, err := source.FetchSince(context.Background(), solAddress, 250000000, "")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Oldest first regardless of API ordering.
	require.Equal(t, "sig1", txs[0].Hash)
	require.Equal(t, int64(250000001), txs[0].BlockHeight)
	require.Equal(t, "0.25", txs[0].Value)
	require.Equal(t, solAddress, txs[0].From)

	require.Equal(t, "sig2", txs[1].Hash)
	require.Equal(t, "1.5", txs[1].Value)
	require.Equal(t, solAddress, txs[1].To)
}

func TestSolanaFetchSinceSkipsSlotsAtOrBelowCheckpoint(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"signature":"old","slot":100,"timestamp":1700000000,
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":1}],"tokenTransfers":[]},
			{"signature":"new","slot":101,"timestamp":1700000001,
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":1}],"tokenTransfers":[]}
		]`, solPeer, solAddress, solPeer, solAddress)
	})

	txs, err := source.FetchSince(context.Background(), solAddress, 100, "")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "new", txs[0].Hash)
}

func TestSolanaFetchSincePrefersTokenLeg(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"signature":"sig1","slot":200,"timestamp":1700000000,
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":2039280}],
			 "tokenTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","mint":"%s","tokenAmount":125.5}]}
		]`, solPeer, solAddress, solPeer, solAddress, solMint)
	})

	txs, err := source.FetchSince(context.Background(), solAddress, 100, "")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.True(t, txs[0].IsTokenTransfer())
	require.Equal(t, solMint, txs[0].Token.Address)
	require.Equal(t, "125.5", txs[0].Token.Amount)
	require.Equal(t, "0", txs[0].Value)
}

func TestSolanaFetchSinceTokenFilter(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"signature":"match","slot":201,"timestamp":1700000000,
			 "nativeTransfers":[],
			 "tokenTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","mint":"%s","tokenAmount":10}]},
			{"signature":"othermint","slot":202,"timestamp":1700000001,
			 "nativeTransfers":[],
			 "tokenTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","mint":"%s","tokenAmount":5}]},
			{"signature":"nativeonly","slot":203,"timestamp":1700000002,
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":1000000000}],
			 "tokenTransfers":[]}
		]`, solPeer, solAddress, solMint, solPeer, solAddress, solAddress, solPeer, solAddress)
	})

	txs, err := source.FetchSince(context.Background(), solAddress, 100, solMint)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "match", txs[0].Hash)
}

func TestSolanaFetchSinceIgnoresUnrelatedTransfers(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[
			{"signature":"unrelated","slot":300,"timestamp":1700000000,
			 "nativeTransfers":[{"fromUserAccount":"%s","toUserAccount":"%s","amount":1}],
			 "tokenTransfers":[]}
		]`, solPeer, solPeer)
	})

	txs, err := source.FetchSince(context.Background(), solAddress, 100, "")
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestSolanaFetchSinceClassifiesHTTP429(t *testing.T) {
	source := newTestSolanaSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := source.FetchSince(context.Background(), solAddress, 100, "")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestFormatLamports(t *testing.T) {
	require.Equal(t, "1.5", formatLamports(1_500_000_000))
	require.Equal(t, "0.25", formatLamports(250_000_000))
	require.Equal(t, "2", formatLamports(2_000_000_000))
	require.Equal(t, "0.000000001", formatLamports(1))
	require.Equal(t, "0", formatLamports(0))
}
