package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"payauth-service/internal/domain"
)

// Provider confirms an already-committed payment with an external card or
// bank rail. The ledger outcome is decided before this is called; the
// provider result only lands as a history entry on the record.
type Provider interface {
	Settle(ctx context.Context, rec *domain.TransactionRecord) (reference string, err error)
}

type settleRequest struct {
	RecordID  string `json:"record_id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Type      string `json:"type"`
}

type settleResponse struct {
	Reference string `json:"reference"`
	Approved  bool   `json:"approved"`
}

// HTTPProvider posts to a card-rail gateway endpoint.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Settle(ctx context.Context, rec *domain.TransactionRecord) (string, error) {
	body, err := json.Marshal(settleRequest{
		RecordID:  rec.ID,
		AccountID: rec.AccountID,
		Amount:    rec.Amount,
		Type:      string(rec.Type),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/settlements", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("settlement gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("settlement gateway: status %d", resp.StatusCode)
	}

	var out settleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("settlement gateway: decode: %w", err)
	}
	if !out.Approved {
		return "", fmt.Errorf("settlement declined, reference %s", out.Reference)
	}
	return out.Reference, nil
}

// MockProvider approves everything instantly. Used in development and tests.
type MockProvider struct{}

func (MockProvider) Settle(_ context.Context, rec *domain.TransactionRecord) (string, error) {
	return "mock-" + rec.ID, nil
}
