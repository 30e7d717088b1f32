package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eddiefleurent/tradeledger/internal/models"
)

const defaultTimeout = 30 * time.Second

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Client is an HTTP client for the brokerage's transaction and market data
// endpoints.
type Client struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewClient creates a feed client with default settings.
func NewClient(apiKey, baseURL string) *Client {
	return NewClientWithHTTP(apiKey, baseURL, &http.Client{Timeout: defaultTimeout})
}

// NewClientWithHTTP creates a feed client with a custom HTTP client.
func NewClientWithHTTP(apiKey, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		client:  httpClient,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Ensure Client implements Source at compile time.
var _ Source = (*Client)(nil)

// transactionDTO mirrors the feed's wire format for one transaction.
type transactionDTO struct {
	ID               json.Number `json:"id"`
	AccountNumber    string      `json:"account_number"`
	OrderID          json.Number `json:"order_id"`
	TransactionType  string      `json:"transaction_type"`
	TransactionSub   string      `json:"transaction_sub_type"`
	Symbol           string      `json:"symbol"`
	UnderlyingSymbol string      `json:"underlying_symbol"`
	InstrumentType   string      `json:"instrument_type"`
	OptionType       string      `json:"option_type"`
	StrikePrice      float64     `json:"strike_price"`
	ExpirationDate   string      `json:"expiration_date"` // YYYY-MM-DD
	Quantity         float64     `json:"quantity"`
	QuantityDir      string      `json:"quantity_direction"` // Long | Short, optional
	Price            float64     `json:"price"`
	Commission       float64     `json:"commission"`
	Fees             float64     `json:"regulatory_fees"`
	ExecutedAt       time.Time   `json:"executed_at"`
}

// FetchTransactions retrieves the account's transaction history since the
// given time, oldest first.
func (c *Client) FetchTransactions(ctx context.Context, account string, since time.Time) ([]models.RawTransaction, error) {
	q := url.Values{}
	q.Set("sort", "asc")
	if !since.IsZero() {
		q.Set("start-at", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?%s", c.baseURL, url.PathEscape(account), q.Encode())

	var payload struct {
		Data struct {
			Items []transactionDTO `json:"items"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetching transactions for %s: %w", account, err)
	}

	txns := make([]models.RawTransaction, 0, len(payload.Data.Items))
	for _, dto := range payload.Data.Items {
		txn, err := dto.toModel()
		if err != nil {
			return nil, fmt.Errorf("decoding transaction %s: %w", dto.ID, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (dto *transactionDTO) toModel() (models.RawTransaction, error) {
	t := models.RawTransaction{
		ID:               dto.ID.String(),
		AccountNumber:    dto.AccountNumber,
		OrderID:          dto.OrderID.String(),
		Type:             dto.TransactionType,
		SubType:          dto.TransactionSub,
		Symbol:           dto.Symbol,
		UnderlyingSymbol: dto.UnderlyingSymbol,
		Quantity:         dto.Quantity,
		Price:            dto.Price,
		Fees:             dto.Commission + dto.Fees,
		ExecutedAt:       dto.ExecutedAt.UTC(),
	}
	// Some feeds report quantity unsigned plus a direction field.
	if strings.EqualFold(dto.QuantityDir, "short") && t.Quantity > 0 {
		t.Quantity = -t.Quantity
	}

	switch strings.ToLower(dto.InstrumentType) {
	case "equity option", "equity_option":
		t.InstrumentType = models.InstrumentEquityOption
	default:
		t.InstrumentType = models.InstrumentEquity
	}

	if t.InstrumentType == models.InstrumentEquityOption {
		switch strings.ToLower(dto.OptionType) {
		case "c", "call":
			t.OptionType = models.OptionTypeCall
		case "p", "put":
			t.OptionType = models.OptionTypePut
		}
		t.Strike = dto.StrikePrice
		if dto.ExpirationDate != "" {
			exp, err := time.Parse("2006-01-02", dto.ExpirationDate)
			if err != nil {
				return t, fmt.Errorf("bad expiration date %q: %w", dto.ExpirationDate, err)
			}
			t.Expiration = exp
		}
	}
	return t, nil
}

// GetMark returns the mid price for a symbol, falling back to last. ErrNoQuote
// is returned when the feed has no usable price.
func (c *Client) GetMark(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/markets/quotes?symbols=%s", c.baseURL, url.QueryEscape(symbol))

	var payload struct {
		Data struct {
			Items []struct {
				Symbol string  `json:"symbol"`
				Bid    float64 `json:"bid"`
				Ask    float64 `json:"ask"`
				Last   float64 `json:"last"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}

	for _, q := range payload.Data.Items {
		if q.Symbol != symbol {
			continue
		}
		if q.Bid > 0 && q.Ask > 0 {
			return (q.Bid + q.Ask) / 2, nil
		}
		if q.Last > 0 {
			return q.Last, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", symbol, ErrNoQuote)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
