package mexc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestSign(t *testing.T) {
	c := NewClient("", "test-api-key", "test-secret-key", testLogger())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "market buy query",
			query: "quoteOrderQty=50.00&recvWindow=5000&side=BUY&symbol=NEWUSDT&timestamp=1640995200000&type=MARKET",
			want:  "4d5222f2d6ed0d7b9f5703186b706a666591a5298eab36ec70b313b4b179cb0e",
		},
		{
			name:  "minimal query",
			query: "symbol=BTCUSDT&timestamp=1640995200000",
			want:  "f5aa210720021ba4c9bff8e3e26ec84d3f6a8ceef0239ed77b89a12be386d8df",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.sign(tt.query); got != tt.want {
				t.Errorf("sign() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSignedQuerySortsParams(t *testing.T) {
	c := NewClient("", "k", "s", testLogger())

	params := url.Values{}
	params.Set("symbol", "NEWUSDT")
	params.Set("side", "BUY")
	params.Set("quoteOrderQty", "50.00")

	query := c.signedQuery(params)
	want := "quoteOrderQty=50.00&side=BUY&symbol=NEWUSDT&signature=" + c.sign("quoteOrderQty=50.00&side=BUY&symbol=NEWUSDT")
	if query != want {
		t.Errorf("signedQuery() = %s, want %s", query, want)
	}
}

func TestPlaceMarketOrder(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/time" {
			w.Write([]byte(`{"serverTime": 1640995200000}`))
			return
		}
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-MEXC-APIKEY")
		gotQuery = r.URL.Query()
		w.Write([]byte(`{
			"orderId": "12345",
			"symbol": "NEWUSDT",
			"status": "FILLED",
			"executedQty": "500.5",
			"cummulativeQuoteQty": "50.00",
			"price": "0.0999"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-api-key", "test-secret-key", testLogger())
	resp, err := c.PlaceMarketOrder(context.Background(), OrderRequest{
		Symbol:        "NEWUSDT",
		Side:          OrderSideBuy,
		QuoteOrderQty: decimal.RequireFromString("50"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/v3/order" {
		t.Errorf("path = %s, want /api/v3/order", gotPath)
	}
	if gotAPIKey != "test-api-key" {
		t.Errorf("api key header = %s", gotAPIKey)
	}
	if gotQuery.Get("quoteOrderQty") != "50.00" {
		t.Errorf("quoteOrderQty = %s, want 50.00", gotQuery.Get("quoteOrderQty"))
	}
	if gotQuery.Get("recvWindow") != "5000" {
		t.Errorf("recvWindow = %s, want 5000", gotQuery.Get("recvWindow"))
	}
	if gotQuery.Get("timestamp") != "1640995200000" {
		t.Errorf("timestamp = %s, want server time", gotQuery.Get("timestamp"))
	}
	if gotQuery.Get("signature") == "" {
		t.Error("signature missing from query")
	}

	if resp.OrderID != "12345" {
		t.Errorf("OrderID = %s, want 12345", resp.OrderID)
	}
	if !resp.ExecutedQty.Equal(decimal.RequireFromString("500.5")) {
		t.Errorf("ExecutedQty = %s, want 500.5", resp.ExecutedQty)
	}
	if !resp.Price.Equal(decimal.RequireFromString("0.0999")) {
		t.Errorf("Price = %s, want 0.0999", resp.Price)
	}
}

func TestPlaceMarketOrderAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/time" {
			w.Write([]byte(`{"serverTime": 1640995200000}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":700002,"msg":"signature invalid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", "bad-secret", testLogger())
	_, err := c.PlaceMarketOrder(context.Background(), OrderRequest{
		Symbol:        "NEWUSDT",
		Side:          OrderSideBuy,
		QuoteOrderQty: decimal.RequireFromString("50"),
	})
	if !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestServerTimeFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", testLogger())
	if ts := c.ServerTime(context.Background()); ts == 0 {
		t.Error("expected local-time fallback, got 0")
	}
}

func TestValidateCredentialsMissing(t *testing.T) {
	c := NewClient("", "", "", testLogger())
	if err := c.ValidateCredentials(context.Background()); !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}
