package payments

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

// PaymentStatus is the payment network's view of a transaction.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSettled PaymentStatus = "settled"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is an observed transaction on the external payment network.
type Payment struct {
	Ref         string
	Status      PaymentStatus
	Currency    enums.Currency
	Amount      decimal.Decimal
	ToAddress   string
	FromAddress string
}

// Client looks up transactions on the payment network. A not-yet-visible
// transaction returns (nil, nil), not an error; propagation delay is the
// normal case immediately after a buyer pays.
type Client interface {
	FetchPayment(ctx context.Context, paymentRef string) (*Payment, error)
}

type httpPaymentClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient builds the production payment-network client.
func NewHTTPClient(cfg config.PaymentVerifyConfig) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment base url required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpPaymentClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type paymentResponse struct {
	Ref         string `json:"ref"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	ToAddress   string `json:"to_address"`
	FromAddress string `json:"from_address"`
}

func (c *httpPaymentClient) FetchPayment(ctx context.Context, paymentRef string) (*Payment, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment lookup failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment response unreadable")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("payment network returned status %d", resp.StatusCode))
	}

	var decoded paymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment response malformed")
	}

	currency, err := enums.ParseCurrency(decoded.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment currency unrecognized")
	}
	amount, err := decimal.NewFromString(decoded.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment amount malformed")
	}

	return &Payment{
		Ref:         decoded.Ref,
		Status:      PaymentStatus(decoded.Status),
		Currency:    currency,
		Amount:      amount,
		ToAddress:   decoded.ToAddress,
		FromAddress: decoded.FromAddress,
	}, nil
}
