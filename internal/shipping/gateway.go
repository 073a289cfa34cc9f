package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Address is the structured postal record the gateway expects on both ends
// of a shipment.
type Address struct {
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"zip"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Parcel describes the package to quote. Dimensions in inches, weight in ounces.
type Parcel struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

// CardMailer is the fixed parcel spec for a standard rigid card mailer.
// Every trade ships in the same envelope, so the parcel is never user input.
var CardMailer = Parcel{Length: 6, Width: 4, Height: 0.75, Weight: 3}

type RateQuote struct {
	ID           string
	Carrier      string
	Service      string
	Level        ServiceLevel
	AmountCents  int64
	Currency     string
	EstDays      int
	DurationTerm string
}

type Label struct {
	TrackingNumber string
	Carrier        string
	LabelURL       string
}

// GatewayError is a failed rate or label call. Retryable errors leave the
// caller free to try again; nothing was committed on the gateway side that
// we depend on.
type GatewayError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("shipping gateway: %s (status %d)", e.Message, e.StatusCode)
}

// Gateway is the rate/label service boundary consumed by the shipping
// coordinator. Implemented over HTTP in production and faked in tests.
type Gateway interface {
	GetRates(ctx context.Context, from, to Address, parcel Parcel) ([]RateQuote, error)
	PurchaseLabel(ctx context.Context, quoteID string) (*Label, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type rateRequest struct {
	AddressFrom Address `json:"address_from"`
	AddressTo   Address `json:"address_to"`
	Parcel      Parcel  `json:"parcel"`
}

type rateResponse struct {
	Rates []struct {
		ObjectID     string `json:"object_id"`
		Provider     string `json:"provider"`
		Amount       string `json:"amount"`
		Currency     string `json:"currency"`
		EstDays      int    `json:"estimated_days"`
		DurationTerm string `json:"duration_terms"`
		ServiceLevel struct {
			Name  string `json:"name"`
			Token string `json:"token"`
		} `json:"servicelevel"`
	} `json:"rates"`
}

func (c *Client) GetRates(ctx context.Context, from, to Address, parcel Parcel) ([]RateQuote, error) {
	if c == nil || c.apiKey == "" {
		return nil, errors.New("shipping gateway is not configured")
	}
	body, err := json.Marshal(rateRequest{AddressFrom: from, AddressTo: to, Parcel: parcel})
	if err != nil {
		return nil, err
	}
	var resp rateResponse
	if err := c.do(ctx, http.MethodPost, "/rates", body, &resp); err != nil {
		return nil, err
	}
	quotes := make([]RateQuote, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		cents, err := parseAmountCents(r.Amount)
		if err != nil {
			continue
		}
		quotes = append(quotes, RateQuote{
			ID:           r.ObjectID,
			Carrier:      r.Provider,
			Service:      r.ServiceLevel.Name,
			Level:        classifyServiceLevel(r.ServiceLevel.Token, r.ServiceLevel.Name),
			AmountCents:  cents,
			Currency:     r.Currency,
			EstDays:      r.EstDays,
			DurationTerm: r.DurationTerm,
		})
	}
	return quotes, nil
}

type labelRequest struct {
	Rate string `json:"rate"`
}

type labelResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Provider       string `json:"provider"`
	LabelURL       string `json:"label_url"`
	Status         string `json:"status"`
}

func (c *Client) PurchaseLabel(ctx context.Context, quoteID string) (*Label, error) {
	if c == nil || c.apiKey == "" {
		return nil, errors.New("shipping gateway is not configured")
	}
	if quoteID == "" {
		return nil, errors.New("quote id is required")
	}
	body, err := json.Marshal(labelRequest{Rate: quoteID})
	if err != nil {
		return nil, err
	}
	var resp labelResponse
	if err := c.do(ctx, http.MethodPost, "/transactions", body, &resp); err != nil {
		return nil, err
	}
	if resp.TrackingNumber == "" || resp.LabelURL == "" {
		return nil, &GatewayError{StatusCode: http.StatusBadGateway, Message: "label purchase returned no tracking data", Retryable: true}
	}
	return &Label{
		TrackingNumber: resp.TrackingNumber,
		Carrier:        resp.Provider,
		LabelURL:       resp.LabelURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ShippoToken "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{StatusCode: 0, Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Message: err.Error(), Retryable: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Message:    gatewayMessage(data),
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &GatewayError{StatusCode: resp.StatusCode, Message: "malformed gateway response", Retryable: true}
		}
	}
	return nil
}

func gatewayMessage(data []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(data) > 0 && len(data) < 200 {
		return string(data)
	}
	return "request failed"
}

func parseAmountCents(amount string) (int64, error) {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(v * 100)), nil
}
