package mpesa

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Errors returned by the gateway client.
var (
	ErrAuthFailed      = errors.New("mpesa authentication failed")
	ErrGatewayRejected = errors.New("mpesa gateway rejected the request")
	ErrInvalidPhone    = errors.New("invalid phone number format")
)

// Config holds the Daraja API credentials and tuning knobs. The client never
// reads configuration from the environment; callers construct this struct.
type Config struct {
	BaseURL        string
	ShortCode      string
	Passkey        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// STKPushResult carries the two correlation identifiers the provider issues
// for an in-flight STK push. The asynchronous callback is matched on this pair.
type STKPushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
}

// StatusResult is the outcome of a status query for a checkout request.
type StatusResult struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// CallbackPayload is the provider's webhook body. Field names are part of the
// external wire contract and must not change.
type CallbackPayload struct {
	MerchantRequestID  string `json:"MerchantRequestID"`
	CheckoutRequestID  string `json:"CheckoutRequestID"`
	ResultCode         int    `json:"ResultCode"`
	ResultDesc         string `json:"ResultDesc"`
	MpesaReceiptNumber string `json:"MpesaReceiptNumber,omitempty"`
}

// Client talks to the Daraja API: OAuth token exchange, STK push initiation
// and status queries. Access tokens are cached until shortly before expiry.
type Client struct {
	cfg  Config
	http *resty.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new gateway client from config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		cfg:  cfg,
		http: resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a cached bearer token, exchanging credentials when the
// cache is empty or expired. Transient failures (network errors, 5xx) are
// retried up to MaxRetries times with an optional delay between attempts.
func (c *Client) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 && c.cfg.RetryDelay > 0 {
			time.Sleep(c.cfg.RetryDelay)
		}

		var result tokenResponse
		resp, err := c.http.R().
			SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
			SetHeader("Cache-Control", "no-cache").
			SetResult(&result).
			Get("/oauth/v1/generate?grant_type=client_credentials")
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() >= 500 {
			lastErr = fmt.Errorf("token endpoint returned status %d", resp.StatusCode())
			continue
		}
		if resp.IsError() || result.AccessToken == "" {
			return "", fmt.Errorf("token endpoint returned status %d: %w", resp.StatusCode(), ErrAuthFailed)
		}

		ttl := 3600 * time.Second
		if secs, parseErr := time.ParseDuration(result.ExpiresIn + "s"); parseErr == nil && secs > 0 {
			ttl = secs
		}
		c.token = result.AccessToken
		// Refresh slightly early so an almost-expired token is never used.
		c.tokenExpiry = time.Now().Add(ttl - 30*time.Second)
		return c.token, nil
	}

	return "", fmt.Errorf("token exchange failed after %d attempts: %v: %w",
		c.cfg.MaxRetries+1, lastErr, ErrAuthFailed)
}

// NormalizePhone converts a Kenyan phone number to the canonical 254XXXXXXXXX
// form the provider requires. Accepts 07..., +254... and 254... inputs.
func NormalizePhone(phone string) (string, error) {
	switch {
	case len(phone) > 4 && phone[:4] == "+254":
		phone = phone[1:]
	case len(phone) > 1 && phone[0] == '0':
		phone = "254" + phone[1:]
	case len(phone) >= 3 && phone[:3] == "254":
		// Already canonical.
	default:
		return "", fmt.Errorf("phone %q must start with 254, +254 or 0: %w", phone, ErrInvalidPhone)
	}

	if len(phone) != 12 {
		return "", fmt.Errorf("phone %q must be 12 digits after formatting: %w", phone, ErrInvalidPhone)
	}
	for _, ch := range phone {
		if ch < '0' || ch > '9' {
			return "", fmt.Errorf("phone %q contains non-digit characters: %w", phone, ErrInvalidPhone)
		}
	}
	return phone, nil
}

// Password derives the STK push password for a timestamp: the base64 of
// shortcode+passkey+timestamp. A deterministic derivation, not a secret exchange.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// InitiatePayment starts an STK push prompting the payer to authorize the
// debit. Returns the provider's correlation identifiers on acceptance.
func (c *Client) InitiatePayment(phone string, amount float64, accountRef string) (*STKPushResult, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	token, err := c.AccessToken()
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            int(math.Round(amount)),
		"PartyA":            normalized,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       normalized,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  accountRef,
		"TransactionDesc":   fmt.Sprintf("Payment for %s", accountRef),
	}

	var result stkPushResponse
	resp, err := c.http.R().
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post("/mpesa/stkpush/v1/processrequest")
	if err != nil {
		return nil, fmt.Errorf("stk push request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stk push returned status %d: %s: %w",
			resp.StatusCode(), resp.String(), ErrGatewayRejected)
	}
	if result.ResponseCode != "0" {
		return nil, fmt.Errorf("stk push declined: %s: %w", result.ResponseDescription, ErrGatewayRejected)
	}

	return &STKPushResult{
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
	}, nil
}

// QueryStatus polls the provider for the final status of a checkout request.
// Used as the fallback reconciliation path when no callback arrives. Transient
// failures are retried with the same policy as the token exchange.
func (c *Client) QueryStatus(checkoutRequestID string) (*StatusResult, error) {
	token, err := c.AccessToken()
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 && c.cfg.RetryDelay > 0 {
			time.Sleep(c.cfg.RetryDelay)
		}

		var result StatusResult
		resp, err := c.http.R().
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&result).
			Post("/mpesa/stkpushquery/v1/query")
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() >= 500 {
			lastErr = fmt.Errorf("status query returned status %d", resp.StatusCode())
			continue
		}
		if resp.IsError() {
			return nil, fmt.Errorf("status query returned status %d: %s: %w",
				resp.StatusCode(), resp.String(), ErrGatewayRejected)
		}
		return &result, nil
	}

	return nil, fmt.Errorf("status query failed after %d attempts: %v: %w",
		c.cfg.MaxRetries+1, lastErr, ErrGatewayRejected)
}
