package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	pkgerrors "github.com/fraxionlabs/fraxion-backend/pkg/errors"
)

// Client submits hashed ledger records to the external public ledger.
type Client interface {
	Submit(ctx context.Context, payload []byte, sequenceNumber int64, previousAnchorRef *string) (string, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient builds the production anchor client.
func NewHTTPClient(cfg config.AnchorConfig) (Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("anchor endpoint required")
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{
		baseURL: cfg.Endpoint,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type submitRequest struct {
	Record            json.RawMessage `json:"record"`
	SequenceNumber    int64           `json:"sequence_number"`
	PreviousAnchorRef *string         `json:"previous_anchor_ref"`
}

type submitResponse struct {
	AnchorRef string `json:"anchor_ref"`
}

// Submit posts the canonical wire payload, tagged with the sequence number
// and the current previous-anchor pointer so third parties can reconstruct
// the chain.
func (c *httpClient) Submit(ctx context.Context, payload []byte, sequenceNumber int64, previousAnchorRef *string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Record:            payload,
		SequenceNumber:    sequenceNumber,
		PreviousAnchorRef: previousAnchorRef,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "anchor submission failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "anchor response unreadable")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("anchor rejected submission with status %d", resp.StatusCode))
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "anchor response malformed")
	}
	if decoded.AnchorRef == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "anchor response missing anchor_ref")
	}
	return decoded.AnchorRef, nil
}
