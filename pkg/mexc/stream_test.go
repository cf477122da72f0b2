package mexc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantTick bool
	}{
		{
			name:     "valid ticker",
			payload:  `{"c":"spot@public.miniTicker.v3.api@UTC+0","d":{"s":"NEWUSDT","p":"0.0015","t":1640995200000}}`,
			wantTick: true,
		},
		{
			name:     "other channel ignored",
			payload:  `{"c":"spot@public.deals.v3.api","d":{"s":"BTCUSDT","p":"42000","t":1640995200000}}`,
			wantTick: false,
		},
		{
			name:     "malformed json dropped",
			payload:  `{not json`,
			wantTick: false,
		},
		{
			name:     "missing symbol dropped",
			payload:  `{"c":"spot@public.miniTicker.v3.api@UTC+0","d":{"p":"1.0","t":1640995200000}}`,
			wantTick: false,
		},
		{
			name:     "unparsable price dropped",
			payload:  `{"c":"spot@public.miniTicker.v3.api@UTC+0","d":{"s":"NEWUSDT","p":"not-a-price","t":1640995200000}}`,
			wantTick: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewStreamClient(DefaultStreamConfig(), testLogger())
			c.handleMessage([]byte(tt.payload))

			select {
			case tick := <-c.Ticks():
				if !tt.wantTick {
					t.Fatalf("unexpected tick: %+v", tick)
				}
				if tick.Symbol != "NEWUSDT" {
					t.Errorf("symbol = %s, want NEWUSDT", tick.Symbol)
				}
				if !tick.Price.Equal(decimal.RequireFromString("0.0015")) {
					t.Errorf("price = %s, want 0.0015", tick.Price)
				}
				if tick.Timestamp.UnixMilli() != 1640995200000 {
					t.Errorf("timestamp = %d, want 1640995200000", tick.Timestamp.UnixMilli())
				}
			default:
				if tt.wantTick {
					t.Fatal("expected tick, got none")
				}
			}
		})
	}
}

func TestHandleMessageDropsWhenBufferFull(t *testing.T) {
	cfg := DefaultStreamConfig()
	cfg.TickBuffer = 1
	c := NewStreamClient(cfg, testLogger())

	payload := []byte(`{"c":"spot@public.miniTicker.v3.api@UTC+0","d":{"s":"NEWUSDT","p":"1.0","t":1}}`)
	c.handleMessage(payload)
	c.handleMessage(payload) // buffer full, must not block

	if got := len(c.ticks); got != 1 {
		t.Errorf("buffered ticks = %d, want 1", got)
	}
}

func TestConnectAndSubscribe(t *testing.T) {
	subscribed := make(chan subscribeMessage, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscription: %v", err)
			return
		}
		subscribed <- sub

		msg, _ := json.Marshal(wsMessage{
			Channel: tickerChannel + "@UTC+0",
			Data:    tickerData{Symbol: "FRESHUSDT", LastPrice: "0.42", Timestamp: 1640995200000},
		})
		conn.WriteMessage(websocket.TextMessage, msg)

		// Hold the connection open until the test is done.
		conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := DefaultStreamConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewStreamClient(cfg, testLogger())
	defer c.Shutdown()

	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %s, want connected", c.State())
	}

	// Idempotent: second connect while connected is a no-op.
	if err := c.Connect(); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	select {
	case sub := <-subscribed:
		if sub.Method != "SUBSCRIPTION" {
			t.Errorf("method = %s, want SUBSCRIPTION", sub.Method)
		}
		if len(sub.Params) != 1 || sub.Params[0] != tickerSub {
			t.Errorf("params = %v, want [%s]", sub.Params, tickerSub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received subscription")
	}

	select {
	case tick := <-c.Ticks():
		if tick.Symbol != "FRESHUSDT" {
			t.Errorf("symbol = %s, want FRESHUSDT", tick.Symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick never delivered")
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := DefaultStreamConfig()
	cfg.URL = "ws://127.0.0.1:1" // nothing listening
	cfg.MaxReconnects = 0
	c := NewStreamClient(cfg, testLogger())
	defer c.Shutdown()

	if err := c.Connect(); err == nil {
		t.Fatal("expected dial error")
	}

	select {
	case <-c.Down():
	case <-time.After(2 * time.Second):
		t.Fatal("Down() not signaled after exhausting attempts")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}
}

func TestShutdownFromAnyState(t *testing.T) {
	c := NewStreamClient(DefaultStreamConfig(), testLogger())

	// Shutdown while never connected.
	c.Shutdown()
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}

	// Connect after shutdown must refuse.
	if err := c.Connect(); err == nil {
		t.Error("expected error connecting after shutdown")
	}
}

func TestStateChangeHook(t *testing.T) {
	c := NewStreamClient(DefaultStreamConfig(), testLogger())

	var states []ConnState
	c.SetStateChangeHook(func(s ConnState) { states = append(states, s) })

	c.mu.Lock()
	c.setStateLocked(StateConnecting)
	c.setStateLocked(StateConnected)
	c.setStateLocked(StateConnected) // no transition, no callback
	c.mu.Unlock()

	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("states = %v, want [connecting connected]", states)
	}
}
