package chains

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"wallet-sentry/shared/logger"
)

func TestMain(m *testing.M) {
	logger.NewLogger(logger.Config{Level: "error", Environment: "test"})
	os.Exit(m.Run())
}

const (
	testAddress = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	testPeer    = "0x28c6c06298d514db089934071355e5743bf21d60"
	testToken   = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

func newTestEVMSource(t *testing.T, handler http.HandlerFunc) DataSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewEVMDataSource(EVMConfig{
		Chain:        ChainEthereum,
		APIURL:       server.URL,
		APIKey:       "test-key",
		NativeSymbol: "ETH",
	}, logger.GetLogger())
}

func TestEVMValidateAddress(t *testing.T) {
	source := NewEVMDataSource(EVMConfig{Chain: ChainEthereum}, logger.GetLogger())

	require.NoError(t, source.ValidateAddress(testAddress))
	require.ErrorIs(t, source.ValidateAddress("not-an-address"), ErrInvalidAddress)
	require.ErrorIs(t, source.ValidateAddress("0x123"), ErrInvalidAddress)
	require.ErrorIs(t, source.ValidateAddress(testAddress+"ff"), ErrInvalidAddress)
}

func TestEVMFetchSinceMergesNativeAndTokenTransfers(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "account", r.URL.Query().Get("module"))
		require.Equal(t, "101", r.URL.Query().Get("startblock"))
		require.Equal(t, "asc", r.URL.Query().Get("sort"))

		switch r.URL.Query().Get("action") {
		case "txlist":
			fmt.Fprintf(w, `{"status":"1","message":"OK","result":[
				{"blockNumber":"103","timeStamp":"1700000100","hash":"0x222","from":"%s","to":"%s","value":"2000000000000000000"}
			]}`, testAddress, testPeer)
		case "tokentx":
			fmt.Fprintf(w, `{"status":"1","message":"OK","result":[
				{"blockNumber":"101","timeStamp":"1700000000","hash":"0x111","from":"%s","to":"%s","value":"250500000","contractAddress":"%s","tokenSymbol":"USDC","tokenDecimal":"6"}
			]}`, testPeer, testAddress, testToken)
		default:
			t.Fatalf("unexpected action %q", r.URL.Query().Get("action"))
		}
	})

	txs, err := source.FetchSince(context.Background(), testAddress, 100, "")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Oldest first.
	require.Equal(t, "0x111", txs[0].Hash)
	require.Equal(t, int64(101), txs[0].BlockHeight)
	require.True(t, txs[0].IsTokenTransfer())
	require.Equal(t, "USDC", txs[0].Token.Symbol)
	require.Equal(t, "250.5", txs[0].Token.Amount)
	require.Equal(t, "0", txs[0].Value)

	require.Equal(t, "0x222", txs[1].Hash)
	require.Equal(t, int64(103), txs[1].BlockHeight)
	require.False(t, txs[1].IsTokenTransfer())
	require.Equal(t, "2", txs[1].Value)
	require.Equal(t, testAddress, txs[1].From)
}

func TestEVMFetchSinceTokenFilterSkipsNativeList(t *testing.T) {
	var actions []string
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		actions = append(actions, r.URL.Query().Get("action"))
		require.Equal(t, testToken, r.URL.Query().Get("contractaddress"))
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	txs, err := source.FetchSince(context.Background(), testAddress, 100, testToken)
	require.NoError(t, err)
	require.Empty(t, txs)
	require.Equal(t, []string{"tokentx"}, actions)
}

func TestEVMFetchSinceDropsEntriesAtOrBelowCheckpoint(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") == "tokentx" {
			fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
			return
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"99","timeStamp":"1700000000","hash":"0xold","from":"%s","to":"%s","value":"1"},
			{"blockNumber":"100","timeStamp":"1700000001","hash":"0xsame","from":"%s","to":"%s","value":"1"},
			{"blockNumber":"101","timeStamp":"1700000002","hash":"0xnew","from":"%s","to":"%s","value":"1"}
		]}`, testPeer, testAddress, testPeer, testAddress, testPeer, testAddress)
	})

	txs, err := source.FetchSince(context.Background(), testAddress, 100, "")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "0xnew", txs[0].Hash)
}

func TestEVMFetchSinceNoTransactionsFound(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	})

	txs, err := source.FetchSince(context.Background(), testAddress, 100, "")
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestEVMFetchSinceClassifiesRateLimit(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max calls per sec rate limit reached"}`)
	})

	_, err := source.FetchSince(context.Background(), testAddress, 100, "")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestEVMFetchSinceClassifiesHTTP429(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := source.FetchSince(context.Background(), testAddress, 100, "")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestEVMCurrentCheckpoint(t *testing.T) {
	source := newTestEVMSource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "proxy", r.URL.Query().Get("module"))
		require.Equal(t, "eth_blockNumber", r.URL.Query().Get("action"))
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x112a880"}`)
	})

	height, err := source.CurrentCheckpoint(context.Background(), testAddress)
	require.NoError(t, err)
	require.Equal(t, int64(0x112a880), height)
}
