package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

// wei per whole coin on every supported chain
var weiPerCoin = new(big.Float).SetFloat64(1e18)

type chainEndpoint struct {
	baseURL string
	apiKey  string
	symbol  string
}

// WalletTracker serves the track_wallet tool against the
// etherscan-family explorer APIs.
type WalletTracker struct {
	httpClient *http.Client
	chains     map[string]chainEndpoint
	logger     *zap.Logger
}

type WalletTrackerConfig struct {
	EtherscanKey   string
	BscscanKey     string
	PolygonscanKey string

	// Base URL overrides, used by tests. Empty means the public API.
	EtherscanURL   string
	BscscanURL     string
	PolygonscanURL string
}

func NewWalletTracker(cfg WalletTrackerConfig, logger *zap.Logger) *WalletTracker {
	ethereum := chainEndpoint{
		baseURL: orDefault(cfg.EtherscanURL, "https://api.etherscan.io/api"),
		apiKey:  cfg.EtherscanKey,
		symbol:  "ETH",
	}
	bsc := chainEndpoint{
		baseURL: orDefault(cfg.BscscanURL, "https://api.bscscan.com/api"),
		apiKey:  cfg.BscscanKey,
		symbol:  "BNB",
	}
	polygon := chainEndpoint{
		baseURL: orDefault(cfg.PolygonscanURL, "https://api.polygonscan.com/api"),
		apiKey:  cfg.PolygonscanKey,
		symbol:  "MATIC",
	}

	return &WalletTracker{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		chains: map[string]chainEndpoint{
			"ethereum":            ethereum,
			"bsc":                 bsc,
			"binance":             bsc,
			"binance smart chain": bsc,
			"polygon":             polygon,
			"matic":               polygon,
		},
		logger: logger,
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// Definition is the function schema registered on assistants.
func (w *WalletTracker) Definition() openai.FunctionDefinition {
	return openai.FunctionDefinition{
		Name:        "track_wallet",
		Description: "Track and report a wallet's balance by address and chain (ethereum, bsc, polygon).",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"address": {
					Type:        jsonschema.String,
					Description: "The wallet address to look up.",
				},
				"chain": {
					Type:        jsonschema.String,
					Description: "The chain or network (ethereum, bsc, or polygon).",
				},
			},
			Required: []string{"address", "chain"},
		},
	}
}

type walletArgs struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

type explorerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Handle resolves the balance. Every failure mode comes back as a
// descriptive string output: the run expects an answer per call, and
// a broken explorer must not abort the whole turn.
func (w *WalletTracker) Handle(ctx context.Context, args json.RawMessage) (string, error) {
	var parsed walletArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Sprintf("track_wallet received malformed arguments: %v", err), nil
	}

	label := strings.ToLower(strings.TrimSpace(parsed.Chain))
	endpoint, ok := w.chains[label]
	if !ok {
		return fmt.Sprintf("Sorry, chain '%s' is not supported yet. Try ethereum, bsc, or polygon.", parsed.Chain), nil
	}
	if endpoint.apiKey == "" {
		return fmt.Sprintf("The API key for chain '%s' is not configured. Contact the administrator.", parsed.Chain), nil
	}

	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "balance")
	query.Set("address", parsed.Address)
	query.Set("tag", "latest")
	query.Set("apikey", endpoint.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Failed to build the wallet lookup request: %v", err), nil
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Error("Wallet explorer request failed",
			zap.String("chain", label),
			zap.Error(err))
		return fmt.Sprintf("An error occurred while fetching wallet data: %v", err), nil
	}
	defer resp.Body.Close()

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Sprintf("Failed to decode wallet data: %v", err), nil
	}

	if body.Status != "1" {
		reason := body.Message
		if reason == "" {
			reason = "Unknown error"
		}
		return fmt.Sprintf("Failed to fetch wallet data: %s", reason), nil
	}

	balance, err := coinBalance(body.Result)
	if err != nil {
		return fmt.Sprintf("Explorer returned an unreadable balance %q: %v", body.Result, err), nil
	}

	return fmt.Sprintf("Wallet %s balance on %s: %s %s",
		parsed.Address, parsed.Chain, balance, endpoint.symbol), nil
}

// coinBalance converts a minor-unit balance string to whole coins.
func coinBalance(raw string) (string, error) {
	wei, ok := new(big.Float).SetString(raw)
	if !ok {
		return "", fmt.Errorf("not a number")
	}
	coins := new(big.Float).Quo(wei, weiPerCoin)
	return coins.Text('f', -1), nil
}
