package service

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/cardswap/cardswap-backend/internal/shipping"
)

type shippingFixture struct {
	*fixture
	gateway *fakeGateway
	svc     ShippingService
}

var testQuotes = []shipping.RateQuote{
	{ID: "rate-express", Carrier: "FedEx", Service: "Overnight", Level: shipping.LevelExpress, AmountCents: 2550},
	{ID: "rate-ground", Carrier: "USPS", Service: "Ground Advantage", Level: shipping.LevelEconomy, AmountCents: 485},
	{ID: "rate-priority", Carrier: "USPS", Service: "Priority Mail", Level: shipping.LevelPriority, AmountCents: 910},
}

// newShippingFixture drives a proposal to the mail branch with both parties'
// default addresses in place.
func newShippingFixture(t *testing.T, method model.ShippingMethod) (*shippingFixture, *model.TradeProposal) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	p := f.negotiate(t)
	if _, err := f.svc.SelectShippingMethod(ctx, p.ID, aliceUID, method); err != nil {
		t.Fatalf("select method: %v", err)
	}
	if err := f.addresses.Create(ctx, &model.ShippingAddress{UserUID: aliceUID, Name: "Alice", Street1: "1 Elm St", City: "Springfield", PostalCode: "01101", Country: "US"}); err != nil {
		t.Fatalf("seed address: %v", err)
	}
	if err := f.addresses.Create(ctx, &model.ShippingAddress{UserUID: bobUID, Name: "Bob", Street1: "2 Oak St", City: "Shelbyville", PostalCode: "01102", Country: "US"}); err != nil {
		t.Fatalf("seed address: %v", err)
	}
	gw := &fakeGateway{quotes: testQuotes}
	sf := &shippingFixture{
		fixture: f,
		gateway: gw,
		svc:     NewShippingService(f.proposals, f.addresses, f.convs, f.notifier, gw, nil),
	}
	fresh, err := f.svc.Get(ctx, p.ID, aliceUID)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	return sf, fresh
}

func TestGetRates(t *testing.T) {
	ctx := context.Background()

	t.Run("returns eligible rates sorted by price and snapshots the address", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		quotes, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil)
		if err != nil {
			t.Fatalf("get rates: %v", err)
		}
		gotIDs := make([]string, 0, len(quotes))
		for _, q := range quotes {
			gotIDs = append(gotIDs, q.ID)
		}
		wantIDs := []string{"rate-ground", "rate-priority", "rate-express"}
		if !reflect.DeepEqual(gotIDs, wantIDs) {
			t.Fatalf("quote order = %v, want %v", gotIDs, wantIDs)
		}

		fresh, err := f.fixture.svc.Get(ctx, p.ID, aliceUID)
		if err != nil {
			t.Fatalf("refetch: %v", err)
		}
		if fresh.ProposerAddressID == nil {
			t.Fatal("proposer address was not snapshotted")
		}
	})

	t.Run("snapshot survives a later default change", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil); err != nil {
			t.Fatalf("get rates: %v", err)
		}
		fresh, _ := f.fixture.svc.Get(ctx, p.ID, aliceUID)
		snapshotted := *fresh.ProposerAddressID

		// Alice adds a new default; the proposal must keep quoting the snapshot.
		if err := f.addresses.Create(ctx, &model.ShippingAddress{UserUID: aliceUID, Name: "Alice", Street1: "9 New Rd", City: "Springfield", PostalCode: "01103", Country: "US", IsDefault: true}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil); err != nil {
			t.Fatalf("get rates: %v", err)
		}
		fresh, _ = f.fixture.svc.Get(ctx, p.ID, aliceUID)
		if *fresh.ProposerAddressID != snapshotted {
			t.Fatalf("snapshot moved from %d to %d", snapshotted, *fresh.ProposerAddressID)
		}
	})

	t.Run("explicit address must belong to the actor", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		bobAddr, err := f.addresses.FindDefaultByUser(ctx, bobUID)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, &bobAddr.ID); !errors.Is(err, ErrForbidden) {
			t.Fatalf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("missing own address", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		f.addresses.addresses = map[uint64]*model.ShippingAddress{}
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil); !errors.Is(err, ErrAddressRequired) {
			t.Fatalf("err = %v, want ErrAddressRequired", err)
		}
	})

	t.Run("missing counterparty address", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		for id, a := range f.addresses.addresses {
			if a.UserUID == bobUID {
				delete(f.addresses.addresses, id)
			}
		}
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil); !errors.Is(err, ErrCounterpartyAddress) {
			t.Fatalf("err = %v, want ErrCounterpartyAddress", err)
		}
	})

	t.Run("no eligible tiers is ErrNoRates", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		f.gateway.quotes = []shipping.RateQuote{
			{ID: "rate-freight", Carrier: "FedEx", Service: "Freight", Level: shipping.LevelOther, AmountCents: 12000},
		}
		if _, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil); !errors.Is(err, ErrNoRates) {
			t.Fatalf("err = %v, want ErrNoRates", err)
		}
	})

	t.Run("gateway failure passes through without status change", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		f.gateway.ratesErr = &shipping.GatewayError{StatusCode: http.StatusServiceUnavailable, Message: "upstream down", Retryable: true}
		_, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil)
		var ge *shipping.GatewayError
		if !errors.As(err, &ge) || !ge.Retryable {
			t.Fatalf("err = %v, want retryable GatewayError", err)
		}
		fresh, _ := f.fixture.svc.Get(ctx, p.ID, aliceUID)
		if fresh.Status != model.ProposalStatusProposed || fresh.ProposerShippingConfirmed {
			t.Fatalf("proposal mutated by failed rate call: %+v", fresh)
		}
	})

	t.Run("meetup proposals cannot shop rates", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMeetup)
		_, err := f.svc.GetRates(ctx, p.ID, aliceUID, nil)
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want TransitionError", err)
		}
	})
}

func TestPurchaseLabel(t *testing.T) {
	ctx := context.Background()

	t.Run("first purchase records fulfillment and moves to shipping_pending", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		got, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
		if got.Status != model.ProposalStatusShippingPending {
			t.Fatalf("raw status = %q, want shipping_pending", got.Status)
		}
		if !got.ProposerShippingConfirmed || got.RecipientShippingConfirmed {
			t.Fatalf("flags = %v/%v", got.ProposerShippingConfirmed, got.RecipientShippingConfirmed)
		}
		conf := got.Confirmation(aliceUID)
		if conf == nil || conf.Kind != model.FulfillmentMail {
			t.Fatalf("confirmation = %+v, want mail", conf)
		}
		if conf.TrackingNumber == "" || conf.LabelURL == "" {
			t.Fatalf("mail confirmation missing artifacts: %+v", conf)
		}
		if got.Confirmation(bobUID) != nil {
			t.Fatal("counterparty confirmation should be nil")
		}
	})

	t.Run("second purchase completes the fulfillment stage", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		if _, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground"); err != nil {
			t.Fatalf("first purchase: %v", err)
		}
		got, err := f.svc.PurchaseLabel(ctx, p.ID, bobUID, "rate-priority")
		if err != nil {
			t.Fatalf("second purchase: %v", err)
		}
		if got.Status != model.ProposalStatusShippingConfirmed {
			t.Fatalf("raw status = %q, want shipping_confirmed", got.Status)
		}
		if eff := got.EffectiveStatus(); eff != model.ProposalStatusCompleted {
			t.Fatalf("effective = %q, want completed", eff)
		}
		// Each party's artifacts stay their own.
		if got.ProposerTrackingNumber == got.RecipientTrackingNumber {
			t.Fatal("tracking numbers collided across parties")
		}
	})

	t.Run("repeat purchase by the same party skips the gateway", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		first, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
		again, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-express")
		if err != nil {
			t.Fatalf("repeat purchase: %v", err)
		}
		if f.gateway.purchaseCalls != 1 {
			t.Fatalf("gateway called %d times, want 1", f.gateway.purchaseCalls)
		}
		if again.ProposerTrackingNumber != first.ProposerTrackingNumber {
			t.Fatal("repeat purchase replaced the original label")
		}
	})

	t.Run("gateway failure leaves the proposal untouched", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		f.gateway.purchaseErr = &shipping.GatewayError{StatusCode: http.StatusBadGateway, Message: "carrier timeout", Retryable: true}
		_, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		var ge *shipping.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("err = %v, want GatewayError", err)
		}
		fresh, _ := f.fixture.svc.Get(ctx, p.ID, aliceUID)
		if fresh.ProposerShippingConfirmed || fresh.ProposerTrackingNumber != "" || fresh.Status != model.ProposalStatusProposed {
			t.Fatalf("failed purchase left writes behind: %+v", fresh)
		}

		// Retry after the gateway recovers.
		f.gateway.purchaseErr = nil
		if _, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground"); err != nil {
			t.Fatalf("retry purchase: %v", err)
		}
	})

	t.Run("retry absorbs a concurrent counterparty confirmation", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		// Bob's label purchase lands between Alice's validation read and her
		// guarded write; the pinned counterparty flag forces a re-read and a
		// recomputed status on the second attempt.
		f.proposals.beforeSetShippingConfirmed = func() {
			raw := f.proposals.proposals[p.ID]
			raw.RecipientShippingConfirmed = true
			raw.RecipientTrackingNumber = "TRK-racing"
			raw.Status = model.ProposalStatusShippingPending
		}
		got, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		if err != nil {
			t.Fatalf("purchase: %v", err)
		}
		if got.Status != model.ProposalStatusShippingConfirmed {
			t.Fatalf("raw status = %q, want shipping_confirmed", got.Status)
		}
		if !got.ProposerShippingConfirmed || !got.RecipientShippingConfirmed {
			t.Fatalf("flags = %v/%v, want both", got.ProposerShippingConfirmed, got.RecipientShippingConfirmed)
		}
		if got.RecipientTrackingNumber != "TRK-racing" {
			t.Fatal("retry overwrote the counterparty's artifacts")
		}
		if f.gateway.purchaseCalls != 1 {
			t.Fatalf("gateway called %d times, want 1", f.gateway.purchaseCalls)
		}
	})

	t.Run("cancel racing a purchase leaves the tracking number in the thread", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		f.proposals.beforeSetShippingConfirmed = func() {
			f.proposals.proposals[p.ID].Status = model.ProposalStatusCancelled
		}
		_, err := f.svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want TransitionError", err)
		}
		fresh := f.proposals.proposals[p.ID]
		if fresh.ProposerShippingConfirmed || fresh.ProposerTrackingNumber != "" {
			t.Fatalf("losing purchase left writes behind: %+v", fresh)
		}
		if len(f.convs.messages) == 0 {
			t.Fatal("no system message recorded the orphaned label")
		}
		last := f.convs.messages[len(f.convs.messages)-1]
		if !strings.Contains(last.Body, "TRK-rate-ground") {
			t.Fatalf("system message %q does not carry the tracking number", last.Body)
		}
	})

	t.Run("purchase before method selection is invalid", func(t *testing.T) {
		f := newFixture(t)
		p := f.negotiate(t)
		gw := &fakeGateway{quotes: testQuotes}
		svc := NewShippingService(f.proposals, f.addresses, f.convs, f.notifier, gw, nil)
		_, err := svc.PurchaseLabel(ctx, p.ID, aliceUID, "rate-ground")
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want TransitionError", err)
		}
		if gw.purchaseCalls != 0 {
			t.Fatal("gateway called despite invalid state")
		}
	})
}

func TestConfirmMeetup(t *testing.T) {
	ctx := context.Background()

	t.Run("both confirmations complete the stage without artifacts", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMeetup)
		got, err := f.svc.ConfirmMeetup(ctx, p.ID, aliceUID)
		if err != nil {
			t.Fatalf("first confirm: %v", err)
		}
		if got.Status != model.ProposalStatusShippingPending {
			t.Fatalf("raw status = %q, want shipping_pending", got.Status)
		}
		conf := got.Confirmation(aliceUID)
		if conf == nil || conf.Kind != model.FulfillmentMeetup {
			t.Fatalf("confirmation = %+v, want meetup", conf)
		}
		if conf.TrackingNumber != "" || conf.LabelURL != "" {
			t.Fatalf("meetup confirmation carries label artifacts: %+v", conf)
		}

		got, err = f.svc.ConfirmMeetup(ctx, p.ID, bobUID)
		if err != nil {
			t.Fatalf("second confirm: %v", err)
		}
		if got.Status != model.ProposalStatusShippingConfirmed {
			t.Fatalf("raw status = %q, want shipping_confirmed", got.Status)
		}
		if eff := got.EffectiveStatus(); eff != model.ProposalStatusCompleted {
			t.Fatalf("effective = %q, want completed", eff)
		}
	})

	t.Run("repeat confirmation is idempotent", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMeetup)
		if _, err := f.svc.ConfirmMeetup(ctx, p.ID, aliceUID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		got, err := f.svc.ConfirmMeetup(ctx, p.ID, aliceUID)
		if err != nil {
			t.Fatalf("repeat confirm: %v", err)
		}
		if got.RecipientShippingConfirmed {
			t.Fatal("repeat confirm set the counterparty flag")
		}
	})

	t.Run("meetup confirm on a mail proposal is invalid", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		_, err := f.svc.ConfirmMeetup(ctx, p.ID, aliceUID)
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want TransitionError", err)
		}
	})
}

func TestRequestAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies only when the counterparty has no address", func(t *testing.T) {
		f, p := newShippingFixture(t, model.ShippingMethodMail)
		before := len(f.notifier.sent)
		if err := f.svc.RequestAddress(ctx, p.ID, aliceUID); err != nil {
			t.Fatalf("request: %v", err)
		}
		if len(f.notifier.sent) != before {
			t.Fatal("notified despite counterparty having an address")
		}

		for id, a := range f.addresses.addresses {
			if a.UserUID == bobUID {
				delete(f.addresses.addresses, id)
			}
		}
		if err := f.svc.RequestAddress(ctx, p.ID, aliceUID); err != nil {
			t.Fatalf("request: %v", err)
		}
		last := f.notifier.sent[len(f.notifier.sent)-1]
		if last.UserUID != bobUID || last.Type != "address_requested" {
			t.Fatalf("notification = %+v", last)
		}
	})
}
