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

const railWallet = "wallet"

// WalletClient implements Gateway against the asynchronous mobile-wallet
// rail. Authorize only initiates a payment and hands back a redirect URL;
// the actual outcome arrives later via webhook or an explicit Status poll.
// The provider vocabulary (RESERVE, SALE, CANCEL, FAILED) is translated to
// canonical statuses here and nowhere else.
type WalletClient struct {
	baseURL         string
	merchantSerial  string
	subscriptionKey string
	tokens          *TokenSource
	client          *http.Client
}

// NewWalletClient creates a wallet rail client
func NewWalletClient(baseURL, merchantSerial, subscriptionKey string, tokens *TokenSource, client *http.Client) *WalletClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WalletClient{
		baseURL:         baseURL,
		merchantSerial:  merchantSerial,
		subscriptionKey: subscriptionKey,
		tokens:          tokens,
		client:          client,
	}
}

type walletPaymentResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

type walletDetailsResponse struct {
	OrderID         string `json:"orderId"`
	TransactionInfo struct {
		Status string `json:"status"`
	} `json:"transactionInfo"`
}

type walletErrorResponse struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Authorize initiates a wallet payment. The returned status is pending: the
// reservation is only confirmed by a later RESERVE callback.
func (w *WalletClient) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if err := validateAmount(req.AmountMinor); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"merchantInfo": map[string]interface{}{
			"merchantSerialNumber": w.merchantSerial,
		},
		"customerInfo": map[string]interface{}{
			"mobileNumber": req.MethodRef,
		},
		"transaction": map[string]interface{}{
			"orderId":         req.Reference,
			"amount":          req.AmountMinor,
			"transactionText": req.Description,
		},
	}

	var pr walletPaymentResponse
	if err := w.call(ctx, http.MethodPost, "/ecomm/v2/payments", req.IdempotencyKey, body, &pr); err != nil {
		return nil, err
	}
	if pr.URL == "" {
		return nil, &domain.GatewayError{Rail: railWallet, Message: "initiate response missing redirect url"}
	}

	return &Authorization{Ref: pr.OrderID, RedirectURL: pr.URL, Status: StatusPending}, nil
}

// Capture takes reserved funds. A SALE-status payment is already captured
// by the rail itself and must not be captured again; callers learn that
// through Status, not through a capture error.
func (w *WalletClient) Capture(ctx context.Context, ref string, amountMinor int64) error {
	if err := validateAmount(amountMinor); err != nil {
		return err
	}
	body := map[string]interface{}{
		"merchantInfo": map[string]interface{}{"merchantSerialNumber": w.merchantSerial},
		"transaction": map[string]interface{}{
			"amount":          amountMinor,
			"transactionText": "Escrow release",
		},
	}
	return w.call(ctx, http.MethodPost, "/ecomm/v2/payments/"+url.PathEscape(ref)+"/capture", "", body, nil)
}

// Cancel releases a reservation without capturing
func (w *WalletClient) Cancel(ctx context.Context, ref, reason string) error {
	body := map[string]interface{}{
		"merchantInfo": map[string]interface{}{"merchantSerialNumber": w.merchantSerial},
		"transaction":  map[string]interface{}{"transactionText": reason},
	}
	return w.call(ctx, http.MethodPut, "/ecomm/v2/payments/"+url.PathEscape(ref)+"/cancel", "", body, nil)
}

// Status polls the authoritative payment state from the rail
func (w *WalletClient) Status(ctx context.Context, ref string) (Status, error) {
	var dr walletDetailsResponse
	if err := w.call(ctx, http.MethodGet, "/ecomm/v2/payments/"+url.PathEscape(ref)+"/details", "", nil, &dr); err != nil {
		return "", err
	}
	return w.translateStatus(dr.TransactionInfo.Status), nil
}

// translateStatus maps the wallet rail vocabulary onto canonical statuses.
// SALE means the rail auto-captured; no separate capture call is needed.
func (w *WalletClient) translateStatus(upstream string) Status {
	switch upstream {
	case "RESERVE":
		return StatusHeld
	case "SALE":
		return StatusCaptured
	case "CANCEL", "VOID":
		return StatusCancelled
	case "FAILED", "REJECTED":
		return StatusFailed
	case "INITIATE", "REGISTER":
		return StatusPending
	default:
		return StatusFailed
	}
}

func (w *WalletClient) call(ctx context.Context, method, path, idempotencyKey string, body, out interface{}) error {
	token, err := w.tokens.Token(ctx)
	if err != nil {
		return &domain.GatewayError{Rail: railWallet, Message: fmt.Sprintf("access token: %v", err)}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", w.subscriptionKey)
	req.Header.Set("Merchant-Serial-Number", w.merchantSerial)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Request-Id", idempotencyKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &domain.GatewayError{
			Rail:      railWallet,
			Message:   err.Error(),
			Retryable: idempotencyKey != "",
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.GatewayError{Rail: railWallet, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		gerr := &domain.GatewayError{
			Rail:    railWallet,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
		var werr walletErrorResponse
		if json.Unmarshal(data, &werr) == nil && werr.ErrorCode != "" {
			gerr.Code = werr.ErrorCode
			gerr.Message = werr.ErrorMessage
		}
		log.Warn().Str("rail", railWallet).Int("status", resp.StatusCode).Str("code", gerr.Code).Msg("Wallet gateway call failed")
		return gerr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &domain.GatewayError{Rail: railWallet, Message: fmt.Sprintf("malformed response: %v", err)}
		}
	}
	return nil
}
