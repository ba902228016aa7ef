package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

const railCard = "card"

// CardClient implements Gateway against the synchronous card rail. Holds are
// placed with manual capture, so the authorize outcome is known immediately
// from the response and capture/cancel map directly to provider calls.
type CardClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewCardClient creates a card rail client
func NewCardClient(baseURL, secretKey string, client *http.Client) *CardClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CardClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    client,
	}
}

type cardIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Authorize places a manual-capture hold for the full amount
func (c *CardClient) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if err := validateAmount(req.AmountMinor); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"amount":         req.AmountMinor,
		"currency":       req.Currency,
		"payment_method": req.MethodRef,
		"capture_method": "manual",
		"confirm":        true,
		"description":    req.Description,
		"metadata":       map[string]string{"reference": req.Reference},
	}

	var intent cardIntent
	if err := c.post(ctx, "/v1/payment_intents", req.IdempotencyKey, body, &intent); err != nil {
		return nil, err
	}

	status := c.translateStatus(intent.Status)
	if status != StatusHeld {
		return nil, &domain.GatewayError{
			Rail:      railCard,
			Code:      intent.Status,
			Message:   fmt.Sprintf("authorization not held, intent status %q", intent.Status),
			Retryable: false,
		}
	}

	return &Authorization{Ref: intent.ID, Status: status}, nil
}

// Capture takes previously held funds. Not retried automatically: the rail
// offers no idempotency on capture, and a blind retry risks double-capture.
func (c *CardClient) Capture(ctx context.Context, ref string, amountMinor int64) error {
	if err := validateAmount(amountMinor); err != nil {
		return err
	}
	body := map[string]interface{}{"amount_to_capture": amountMinor}
	var intent cardIntent
	return c.post(ctx, "/v1/payment_intents/"+url.PathEscape(ref)+"/capture", "", body, &intent)
}

// Cancel releases a hold without capturing
func (c *CardClient) Cancel(ctx context.Context, ref, reason string) error {
	body := map[string]interface{}{"cancellation_reason": reason}
	var intent cardIntent
	return c.post(ctx, "/v1/payment_intents/"+url.PathEscape(ref)+"/cancel", "", body, &intent)
}

// Status fetches the current canonical status of a hold
func (c *CardClient) Status(ctx context.Context, ref string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(ref), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	var intent cardIntent
	if err := c.do(req, &intent); err != nil {
		return "", err
	}
	return c.translateStatus(intent.Status), nil
}

// translateStatus maps the card rail vocabulary onto canonical statuses
func (c *CardClient) translateStatus(upstream string) Status {
	switch upstream {
	case "requires_capture":
		return StatusHeld
	case "succeeded":
		return StatusCaptured
	case "canceled":
		return StatusCancelled
	case "processing", "requires_confirmation", "requires_action":
		return StatusPending
	default:
		return StatusFailed
	}
}

func (c *CardClient) post(ctx context.Context, path, idempotencyKey string, body interface{}, out *cardIntent) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return c.do(req, out)
}

func (c *CardClient) do(req *http.Request, out *cardIntent) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.GatewayError{
			Rail:      railCard,
			Message:   err.Error(),
			Retryable: req.Method == http.MethodPost && req.Header.Get("Idempotency-Key") != "",
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.GatewayError{Rail: railCard, Message: err.Error()}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &domain.GatewayError{Rail: railCard, Message: fmt.Sprintf("malformed response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		gerr := &domain.GatewayError{
			Rail:    railCard,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
		if out.Error != nil {
			gerr.Code = out.Error.Code
			gerr.Message = out.Error.Message
		}
		log.Warn().Str("rail", railCard).Int("status", resp.StatusCode).Str("code", gerr.Code).Msg("Card gateway call failed")
		return gerr
	}
	return nil
}
