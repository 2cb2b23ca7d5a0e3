package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// Client fetches the current exchange rate for one US dollar in the
// target currency.
type Client interface {
	Rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error)
}

type httpRateClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds the production rate client.
func NewHTTPClient(cfg config.RatesConfig) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rates base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpRateClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type rateResponse struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

func (c *httpRateClient) Rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error) {
	if currency == enums.CurrencyUSD {
		return decimal.NewFromInt(1), nil
	}

	endpoint := fmt.Sprintf("%s/v1/rates/%s", c.baseURL, url.PathEscape(string(currency)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate fetch failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate response unreadable")
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("rate provider returned status %d", resp.StatusCode))
	}

	var decoded rateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate response malformed")
	}
	rate, err := decimal.NewFromString(decoded.Rate)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate value malformed")
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "rate provider returned non-positive rate")
	}
	return rate, nil
}
