package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func explorerStub(t *testing.T, status, result, message string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		assert.Equal(t, "balance", r.URL.Query().Get("action"))
		json.NewEncoder(w).Encode(explorerResponse{
			Status:  status,
			Message: message,
			Result:  result,
		})
	}))
}

func TestTrackWalletEthereum(t *testing.T) {
	stub := explorerStub(t, "1", "1000000000000000000", "OK")
	defer stub.Close()

	wallet := NewWalletTracker(WalletTrackerConfig{
		EtherscanKey: "test-key",
		EtherscanURL: stub.URL,
	}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"0xabc","chain":"ethereum"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "0xabc")
	assert.Contains(t, out, "1 ETH")
}

func TestTrackWalletChainAliases(t *testing.T) {
	stub := explorerStub(t, "1", "2500000000000000000", "OK")
	defer stub.Close()

	wallet := NewWalletTracker(WalletTrackerConfig{
		BscscanKey: "test-key",
		BscscanURL: stub.URL,
	}, zap.NewNop())

	for _, chain := range []string{"bsc", "binance", "binance smart chain"} {
		out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"0xabc","chain":"`+chain+`"}`))
		require.NoError(t, err)
		assert.Contains(t, out, "2.5 BNB", "chain %q", chain)
	}
}

func TestTrackWalletUnsupportedChain(t *testing.T) {
	wallet := NewWalletTracker(WalletTrackerConfig{}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"0xabc","chain":"dogecoin"}`))
	require.NoError(t, err, "domain validation failures are outputs, not errors")
	assert.Contains(t, out, "dogecoin")
	assert.Contains(t, out, "not supported")
}

func TestTrackWalletMissingAPIKey(t *testing.T) {
	wallet := NewWalletTracker(WalletTrackerConfig{}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"0xabc","chain":"ethereum"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "not configured")
}

func TestTrackWalletExplorerFailure(t *testing.T) {
	stub := explorerStub(t, "0", "", "Invalid address format")
	defer stub.Close()

	wallet := NewWalletTracker(WalletTrackerConfig{
		EtherscanKey: "test-key",
		EtherscanURL: stub.URL,
	}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"junk","chain":"ethereum"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid address format")
}

// A dead downstream API must not abort the run: the failure comes
// back as a descriptive output string.
func TestTrackWalletNetworkError(t *testing.T) {
	stub := explorerStub(t, "1", "0", "OK")
	stub.Close() // connection refused from here on

	wallet := NewWalletTracker(WalletTrackerConfig{
		EtherscanKey: "test-key",
		EtherscanURL: stub.URL,
	}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{"address":"0xabc","chain":"ethereum"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "error occurred while fetching wallet data")
}

func TestTrackWalletMalformedArguments(t *testing.T) {
	wallet := NewWalletTracker(WalletTrackerConfig{}, zap.NewNop())

	out, err := wallet.Handle(context.Background(), json.RawMessage(`{not json`))
	require.NoError(t, err)
	assert.Contains(t, out, "malformed arguments")
}

func TestCoinBalance(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1000000000000000000", "1"},
		{"2500000000000000000", "2.5"},
		{"0", "0"},
	}
	for _, tt := range tests {
		got, err := coinBalance(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "raw %s", tt.raw)
	}

	_, err := coinBalance("not-a-number")
	assert.Error(t, err)
}
