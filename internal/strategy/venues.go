package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPPriceFetcher polls venue REST APIs for spot prices. Calls use a short
// per-request timeout and are never retried; the caller logs failures.
type HTTPPriceFetcher struct {
	client *http.Client
}

// NewHTTPPriceFetcher creates a fetcher with the given per-call timeout
// (capped at 5s).
func NewHTTPPriceFetcher(timeout time.Duration) *HTTPPriceFetcher {
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &HTTPPriceFetcher{client: &http.Client{Timeout: timeout}}
}

// FetchPrice retrieves the latest spot price for symbol on the named venue.
func (f *HTTPPriceFetcher) FetchPrice(ctx context.Context, venue, sym string) (float64, error) {
	switch venue {
	case "coinbase":
		return f.fetchCoinbase(ctx, sym)
	case "kraken":
		return f.fetchKraken(ctx, sym)
	default:
		return 0, fmt.Errorf("unsupported venue %q", venue)
	}
}

// coinbasePair maps BTCUSDT-style symbols to coinbase spot pairs.
func coinbasePair(sym string) string {
	base := strings.TrimSuffix(sym, "USDT")
	return base + "-USD"
}

func (f *HTTPPriceFetcher) fetchCoinbase(ctx context.Context, sym string) (float64, error) {
	url := fmt.Sprintf("https://api.coinbase.com/v2/prices/%s/spot", coinbasePair(sym))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coinbase request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coinbase status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("coinbase decode: %w", err)
	}
	return parsePrice(body.Data.Amount)
}

func (f *HTTPPriceFetcher) fetchKraken(ctx context.Context, sym string) (float64, error) {
	pair := strings.TrimSuffix(sym, "USDT") + "USD"
	url := "https://api.kraken.com/0/public/Ticker?pair=" + pair
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("kraken request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("kraken status %d", resp.StatusCode)
	}

	var body struct {
		Result map[string]struct {
			C []string `json:"c"` // last trade [price, lot volume]
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("kraken decode: %w", err)
	}
	for _, ticker := range body.Result {
		if len(ticker.C) > 0 {
			return parsePrice(ticker.C[0])
		}
	}
	return 0, fmt.Errorf("kraken: no ticker for %s", pair)
}

func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}
