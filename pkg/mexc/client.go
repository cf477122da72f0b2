package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultRESTURL = "https://api.mexc.com"
	recvWindowMs   = 5000
)

// ErrAuth marks authentication failures from the exchange. Callers use it to
// disable further live attempts until credentials are revalidated.
var ErrAuth = errors.New("mexc: authentication failed")

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderRequest describes a market order. Buys size by QuoteOrderQty (quote
// currency amount); sells size by Quantity (base currency amount).
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	QuoteOrderQty decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderID string
}

type OrderResponse struct {
	OrderID             string          `json:"orderId"`
	Symbol              string          `json:"symbol"`
	Status              string          `json:"status"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Price               decimal.Decimal `json:"price"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// Client is a signed REST client for the MEXC spot API.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewClient(baseURL, apiKey, secretKey string, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultRESTURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     logger,
	}
}

// sign computes the HMAC-SHA256 hex digest of the query string.
func (c *Client) sign(queryString string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(queryString))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery URL-encodes params in sorted key order and appends the signature.
func (c *Client) signedQuery(params url.Values) string {
	queryString := params.Encode()
	return queryString + "&signature=" + c.sign(queryString)
}

// ServerTime returns the exchange clock in epoch milliseconds. Falls back to
// local time so a transient time-sync failure never blocks an order.
func (c *Client) ServerTime(ctx context.Context) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/time", nil)
	if err != nil {
		return time.Now().UnixMilli()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to get server time, using local time")
		return time.Now().UnixMilli()
	}
	defer resp.Body.Close()

	var st serverTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil || st.ServerTime == 0 {
		c.logger.WithError(err).Warn("Failed to decode server time, using local time")
		return time.Now().UnixMilli()
	}
	return st.ServerTime
}

// PlaceMarketOrder places a market order and returns the exchange fill.
func (c *Client) PlaceMarketOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "MARKET")
	if !order.QuoteOrderQty.IsZero() {
		params.Set("quoteOrderQty", order.QuoteOrderQty.StringFixed(2))
	}
	if !order.Quantity.IsZero() {
		params.Set("quantity", order.Quantity.String())
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"orderId":     orderResp.OrderID,
		"symbol":      orderResp.Symbol,
		"executedQty": orderResp.ExecutedQty,
	}).Info("Order placed")

	return &orderResp, nil
}

// CancelOrder cancels an open order. A cancel racing a settled market fill may
// fail on the exchange side; callers decide whether that matters.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// ValidateCredentials probes the signed account endpoint. Used at startup to
// decide whether live trading is possible.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	if c.apiKey == "" || c.secretKey == "" {
		return fmt.Errorf("%w: credentials not configured", ErrAuth)
	}
	_, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	return err
}

func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", fmt.Sprintf("%d", c.ServerTime(ctx)))
	params.Set("recvWindow", fmt.Sprintf("%d", recvWindowMs))

	reqURL := c.baseURL + path + "?" + c.signedQuery(params)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MEXC-APIKEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mexc request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrAuth, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mexc API error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
