package shipping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var testFrom = Address{Name: "Alice", Street1: "1 Elm St", City: "Springfield", PostalCode: "01101", Country: "US"}
var testTo = Address{Name: "Bob", Street1: "2 Oak St", City: "Shelbyville", PostalCode: "01102", Country: "US"}

func TestClientGetRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rates" {
			t.Errorf("path = %q, want /rates", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "ShippoToken test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rates":[
			{"object_id":"r1","provider":"USPS","amount":"4.85","currency":"USD","estimated_days":5,
			 "servicelevel":{"name":"Ground Advantage","token":"usps_ground_advantage"}},
			{"object_id":"r2","provider":"USPS","amount":"not-a-number","currency":"USD",
			 "servicelevel":{"name":"Priority Mail","token":"usps_priority"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", srv.Client())
	quotes, err := c.GetRates(context.Background(), testFrom, testTo, CardMailer)
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	// The malformed amount is skipped, not fatal.
	if len(quotes) != 1 {
		t.Fatalf("len(quotes) = %d, want 1", len(quotes))
	}
	q := quotes[0]
	if q.ID != "r1" || q.AmountCents != 485 || q.Level != LevelEconomy {
		t.Fatalf("quote = %+v", q)
	}
}

func TestClientPurchaseLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" {
			t.Errorf("path = %q, want /transactions", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tracking_number":"9400100000000000000000","provider":"USPS","label_url":"https://labels.example/1.pdf","status":"SUCCESS"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", srv.Client())
	label, err := c.PurchaseLabel(context.Background(), "r1")
	if err != nil {
		t.Fatalf("PurchaseLabel: %v", err)
	}
	if label.TrackingNumber == "" || label.Carrier != "USPS" || label.LabelURL == "" {
		t.Fatalf("label = %+v", label)
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantMessage   string
	}{
		{"server error is retryable", http.StatusServiceUnavailable, `{"detail":"carrier upstream timeout"}`, true, "carrier upstream timeout"},
		{"rate limit is retryable", http.StatusTooManyRequests, `{"message":"slow down"}`, true, "slow down"},
		{"client error is not retryable", http.StatusUnprocessableEntity, `{"detail":"invalid postal code"}`, false, "invalid postal code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "test-key", srv.Client())
			_, err := c.GetRates(context.Background(), testFrom, testTo, CardMailer)
			var ge *GatewayError
			if !errors.As(err, &ge) {
				t.Fatalf("err = %v, want GatewayError", err)
			}
			if ge.StatusCode != tt.status || ge.Retryable != tt.wantRetryable || ge.Message != tt.wantMessage {
				t.Fatalf("GatewayError = %+v", ge)
			}
		})
	}
}

func TestClientPurchaseLabelIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"QUEUED"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", srv.Client())
	_, err := c.PurchaseLabel(context.Background(), "r1")
	var ge *GatewayError
	if !errors.As(err, &ge) || !ge.Retryable {
		t.Fatalf("err = %v, want retryable GatewayError", err)
	}
}

func TestClientUnconfigured(t *testing.T) {
	c := NewClient("http://unused", "", nil)
	if _, err := c.GetRates(context.Background(), testFrom, testTo, CardMailer); err == nil {
		t.Fatal("expected error when api key is missing")
	}
	if _, err := c.PurchaseLabel(context.Background(), "r1"); err == nil {
		t.Fatal("expected error when api key is missing")
	}
}
