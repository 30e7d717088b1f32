package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

func TestFetchTransactions(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("sort") != "asc" {
			t.Errorf("sort = %q, want asc", r.URL.Query().Get("sort"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"items": [
			{
				"id": 1001,
				"account_number": "5WT0001",
				"order_id": 100,
				"transaction_type": "Trade",
				"transaction_sub_type": "Sell to Open",
				"symbol": "XYZ 240119P00450000",
				"underlying_symbol": "XYZ",
				"instrument_type": "Equity Option",
				"option_type": "P",
				"strike_price": 450,
				"expiration_date": "2024-01-19",
				"quantity": 2,
				"quantity_direction": "Short",
				"price": 1.50,
				"commission": 1.00,
				"regulatory_fees": 0.12,
				"executed_at": "2024-01-02T15:04:05Z"
			},
			{
				"id": 1002,
				"account_number": "5WT0001",
				"transaction_type": "Receive Deliver",
				"transaction_sub_type": "Expiration",
				"symbol": "XYZ 240119P00450000",
				"underlying_symbol": "XYZ",
				"instrument_type": "Equity Option",
				"option_type": "Put",
				"strike_price": 450,
				"expiration_date": "2024-01-19",
				"quantity": 2,
				"price": 0,
				"executed_at": "2024-01-19T22:00:00Z"
			}
		]}}`))
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL)
	txns, err := c.FetchTransactions(context.Background(), "5WT0001", time.Time{})
	if err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}

	if gotPath != "/accounts/5WT0001/transactions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}

	fill := txns[0]
	if fill.ID != "1001" || fill.OrderID != "100" {
		t.Errorf("ids = %s/%s, want 1001/100", fill.ID, fill.OrderID)
	}
	if fill.Quantity != -2 {
		t.Errorf("quantity = %v, want -2 (short direction applied)", fill.Quantity)
	}
	if fill.InstrumentType != models.InstrumentEquityOption || fill.OptionType != models.OptionTypePut {
		t.Errorf("instrument = %s/%s", fill.InstrumentType, fill.OptionType)
	}
	if fill.Strike != 450 {
		t.Errorf("strike = %v, want 450", fill.Strike)
	}
	if !fill.Expiration.Equal(time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expiration = %v", fill.Expiration)
	}
	if fill.Fees != 1.12 {
		t.Errorf("fees = %v, want 1.12 (commission + regulatory)", fill.Fees)
	}

	sys := txns[1]
	if sys.OrderID != "" {
		t.Errorf("system event order id = %q, want empty", sys.OrderID)
	}
	if !sys.IsSystemEvent() {
		t.Error("expiration should decode as a system event")
	}
}

func TestFetchTransactionsSinceParam(t *testing.T) {
	var gotStart string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start-at")
		_, _ = w.Write([]byte(`{"data": {"items": []}}`))
	}))
	defer server.Close()

	c := NewClient("k", server.URL)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.FetchTransactions(context.Background(), "5WT0001", since); err != nil {
		t.Fatalf("FetchTransactions: %v", err)
	}
	if gotStart != "2024-01-01T00:00:00Z" {
		t.Errorf("start-at = %q", gotStart)
	}
}

func TestFetchTransactionsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient("k", server.URL)
	_, err := c.FetchTransactions(context.Background(), "5WT0001", time.Time{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.Status)
	}
}

func TestGetMark(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr error
	}{
		{
			"mid from bid ask",
			`{"data": {"items": [{"symbol": "XYZ", "bid": 1.00, "ask": 1.10, "last": 0.90}]}}`,
			1.05, nil,
		},
		{
			"falls back to last",
			`{"data": {"items": [{"symbol": "XYZ", "bid": 0, "ask": 0, "last": 0.90}]}}`,
			0.90, nil,
		},
		{
			"no usable quote",
			`{"data": {"items": [{"symbol": "XYZ", "bid": 0, "ask": 0, "last": 0}]}}`,
			0, ErrNoQuote,
		},
		{
			"symbol missing",
			`{"data": {"items": []}}`,
			0, ErrNoQuote,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient("k", server.URL)
			got, err := c.GetMark(context.Background(), "XYZ")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetMark: %v", err)
			}
			if got != tt.want {
				t.Errorf("mark = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMockSourceSinceFilter(t *testing.T) {
	m := NewMockSource()
	m.Transactions["5WT0001"] = []models.RawTransaction{
		{ID: "old", ExecutedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "new", ExecutedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	}

	all, err := m.FetchTransactions(context.Background(), "5WT0001", time.Time{})
	if err != nil || len(all) != 2 {
		t.Fatalf("unfiltered fetch = %d txns, err %v", len(all), err)
	}

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent, err := m.FetchTransactions(context.Background(), "5WT0001", since)
	if err != nil || len(recent) != 1 || recent[0].ID != "new" {
		t.Fatalf("filtered fetch = %+v, err %v", recent, err)
	}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	m := NewMockSource()
	m.Transactions["5WT0001"] = []models.RawTransaction{{ID: "t1", ExecutedAt: time.Now()}}
	m.Marks["XYZ"] = 1.05

	cb := NewCircuitBreakerSource(m)

	txns, err := cb.FetchTransactions(context.Background(), "5WT0001", time.Time{})
	if err != nil || len(txns) != 1 {
		t.Fatalf("FetchTransactions through breaker = %d txns, err %v", len(txns), err)
	}
	mark, err := cb.GetMark(context.Background(), "XYZ")
	if err != nil || mark != 1.05 {
		t.Fatalf("GetMark through breaker = %v, err %v", mark, err)
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	failing := &failingSource{}
	cb := NewCircuitBreakerSourceWithSettings(failing, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		if _, err := cb.FetchTransactions(context.Background(), "5WT0001", time.Time{}); err == nil {
			t.Fatal("failing source returned no error")
		}
	}

	_, err := cb.FetchTransactions(context.Background(), "5WT0001", time.Time{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want open circuit", err)
	}
	if calls := failing.calls; calls != 3 {
		t.Errorf("upstream called %d times, want 3 (circuit open)", calls)
	}
}

type failingSource struct {
	calls int
}

func (f *failingSource) FetchTransactions(context.Context, string, time.Time) ([]models.RawTransaction, error) {
	f.calls++
	return nil, errors.New("upstream down")
}

func (f *failingSource) GetMark(context.Context, string) (float64, error) {
	f.calls++
	return 0, errors.New("upstream down")
}
