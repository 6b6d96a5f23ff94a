package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/payments"
)

type orderServiceFixture struct {
	svc        OrderService
	repo       *memOrderRepo
	payments   *stubPaymentLookup
	promotions *stubPromotions
	audit      *stubAudit
	dispatcher *recordingDispatcher
	logged     []string
	now        time.Time
}

func newOrderServiceFixture(t *testing.T, mutate func(*OrderServiceDeps)) *orderServiceFixture {
	t.Helper()
	f := &orderServiceFixture{
		repo:       newMemOrderRepo(),
		payments:   &stubPaymentLookup{},
		promotions: &stubPromotions{},
		audit:      &stubAudit{},
		dispatcher: &recordingDispatcher{},
		now:        time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	var seq int
	deps := OrderServiceDeps{
		Orders:        f.repo,
		Pricing:       newTestPricingEngine(t),
		Catalog:       &stubCatalog{products: map[string]domain.Product{}},
		Promotions:    f.promotions,
		Payments:      f.payments,
		Notifications: f.dispatcher,
		Audit:         f.audit,
		Clock:         func() time.Time { return f.now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("order-%d", seq)
		},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			f.logged = append(f.logged, event)
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *orderServiceFixture) hasLog(event string) bool {
	for _, e := range f.logged {
		if e == event {
			return true
		}
	}
	return false
}

// succeededPayment is a captured intent opened by checkout for scenarioItems.
func succeededPayment(amount int64) payments.PaymentDetails {
	return payments.PaymentDetails{
		Provider:       "stripe",
		Status:         payments.StatusSucceeded,
		Amount:         amount,
		AmountReceived: amount,
		Currency:       "usd",
		Metadata:       map[string]string{"subtotal": "12000", "item_count": "1"},
	}
}

// scenarioItems is a 120.00 subtotal: free shipping, 9.60 tax, 129.60 total.
func scenarioItems() []LineItem {
	return []LineItem{pricedItem(4000, 3)}
}

func TestCreateOrderWithConfirmedPayment(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.payments.details = succeededPayment(12960)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Customer:        Customer{UserID: "user-1", Name: "Jane", Email: "Jane@Example.com"},
		Items:           scenarioItems(),
		PaymentIntentID: "pi_123",
		PaymentMethod:   "card",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Breakdown.Total != 12960 || order.Breakdown.Tax != 960 || order.Breakdown.Shipping != 0 {
		t.Fatalf("unexpected breakdown %#v", order.Breakdown)
	}
	if order.Status != domain.OrderStatusProcessing || order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected processing/paid, got %s/%s", order.Status, order.PaymentStatus)
	}
	if !IsOrderNumber(order.OrderNumber) {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Customer.Email != "jane@example.com" {
		t.Fatalf("expected normalised email, got %q", order.Customer.Email)
	}
	if order.Version != 1 || !order.CreatedAt.Equal(f.now) {
		t.Fatalf("unexpected version/timestamps %#v", order)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected order persisted")
	}
	if len(f.dispatcher.created) != 1 || f.dispatcher.created[0].ID != order.ID {
		t.Fatalf("expected created notification dispatched, got %#v", f.dispatcher.created)
	}
}

func TestCreateOrderAmountMismatchByOneMinorUnit(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.payments.details = succeededPayment(12959)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           scenarioItems(),
		PaymentIntentID: "pi_123",
	})
	if !errors.Is(err, ErrOrderAmountMismatch) {
		t.Fatalf("expected ErrOrderAmountMismatch, got %v", err)
	}
	if f.repo.inserts != 0 {
		t.Fatalf("expected no persistence, got %d inserts", f.repo.inserts)
	}
	if len(f.dispatcher.created) != 0 {
		t.Fatalf("expected no notification")
	}
}

func TestCreateOrderAmountMismatchProperty(t *testing.T) {
	for _, delta := range []int64{-100, -1, 1, 100} {
		f := newOrderServiceFixture(t, nil)
		f.payments.details = succeededPayment(12960 + delta)
		_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi"})
		if !errors.Is(err, ErrOrderAmountMismatch) {
			t.Fatalf("delta %d: expected ErrOrderAmountMismatch, got %v", delta, err)
		}
		if f.repo.inserts != 0 {
			t.Fatalf("delta %d: expected no persistence", delta)
		}
	}
}

func TestCreateOrderCurrencyMismatch(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	details := succeededPayment(12960)
	details.Currency = "eur"
	f.payments.details = details

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi"})
	if !errors.Is(err, ErrOrderAmountMismatch) {
		t.Fatalf("expected ErrOrderAmountMismatch, got %v", err)
	}
}

func TestCreateOrderQuotedBreakdownMismatch(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	quoted := PriceBreakdown{Currency: "USD", Subtotal: 12000, Tax: 960, Total: 12961}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), QuotedBreakdown: &quoted})
	if !errors.Is(err, ErrOrderAmountMismatch) {
		t.Fatalf("expected ErrOrderAmountMismatch, got %v", err)
	}
	if f.repo.inserts != 0 {
		t.Fatalf("expected no persistence")
	}
}

func TestCreateOrderPaymentNotConfirmed(t *testing.T) {
	tests := []struct {
		name    string
		details payments.PaymentDetails
		err     error
		want    error
	}{
		{name: "pending", details: payments.PaymentDetails{Status: payments.StatusPending, Amount: 12960, Currency: "usd"}, want: ErrPaymentNotConfirmed},
		{name: "failed", details: payments.PaymentDetails{Status: payments.StatusFailed, Amount: 12960, Currency: "usd"}, want: ErrPaymentNotConfirmed},
		{name: "unknown intent", err: payments.ErrIntentNotFound, want: ErrPaymentNotConfirmed},
		{name: "provider down", err: errors.New("timeout"), want: ErrOrderUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, nil)
			f.payments.details = tc.details
			f.payments.err = tc.err
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.repo.inserts != 0 {
				t.Fatalf("expected no persistence")
			}
		})
	}
}

func TestCreateOrderWithoutPaymentStaysPending(t *testing.T) {
	f := newOrderServiceFixture(t, nil)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           []LineItem{pricedItem(2000, 2)},
		ShippingAddress: &Address{Line: " 1 Main St ", City: "Springfield"},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending order, got %s/%s", order.Status, order.PaymentStatus)
	}
	if order.Breakdown.Total != 5319 {
		t.Fatalf("expected 5319, got %d", order.Breakdown.Total)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.Line != "1 Main St" {
		t.Fatalf("expected trimmed address, got %#v", order.ShippingAddress)
	}
	if len(f.payments.calls) != 0 {
		t.Fatalf("payment provider should not be consulted")
	}
}

func TestCreateOrderRepricesFromCatalog(t *testing.T) {
	const productID = "65f1c2a9b3e4d5f6a7b8c9d0"
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.Catalog = &stubCatalog{products: map[string]domain.Product{
			productID: {ID: productID, Name: "Linen Shirt", Price: 4000},
		}}
	})

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items: []LineItem{
			{ProductRef: domain.CatalogRef(productID), Name: "stale", UnitPrice: 1, Quantity: 3},
			{ProductRef: domain.CatalogRef("65f1c2a9b3e4d5f6a7b8c9ff"), Name: "Gone", UnitPrice: 500, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Items[0].UnitPrice != 4000 || order.Items[0].Name != "Linen Shirt" {
		t.Fatalf("expected catalog price, got %#v", order.Items[0])
	}
	if order.Items[1].UnitPrice != 500 {
		t.Fatalf("expected client price fallback, got %#v", order.Items[1])
	}
	if order.Breakdown.Subtotal != 12500 {
		t.Fatalf("unexpected subtotal %d", order.Breakdown.Subtotal)
	}
}

func TestCreateOrderCatalogUnavailable(t *testing.T) {
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.Catalog = &stubCatalog{err: ErrCatalogUnavailable}
	})
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items: []LineItem{{ProductRef: domain.CatalogRef("65f1c2a9b3e4d5f6a7b8c9d0"), UnitPrice: 100, Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
}

func TestCreateOrderAppliesCouponAndRedeems(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.promotions.resolveFn = func(_ context.Context, code string, subtotal int64) (CouponResolution, error) {
		if code != "SAVE10" || subtotal != 12000 {
			t.Fatalf("unexpected resolve args %s %d", code, subtotal)
		}
		return CouponResolution{Coupon: domain.Coupon{ID: "c1", Code: "SAVE10"}, Discount: 1200}, nil
	}

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:      scenarioItems(),
		CouponCode: " save10 ",
		Discount:   99999,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Breakdown.Discount != 1200 || order.Breakdown.Total != 11760 {
		t.Fatalf("unexpected breakdown %#v", order.Breakdown)
	}
	if order.CouponCode != "SAVE10" {
		t.Fatalf("unexpected coupon code %q", order.CouponCode)
	}
	if len(f.promotions.redeemed) != 1 || f.promotions.redeemed[0] != "SAVE10" {
		t.Fatalf("expected redemption, got %v", f.promotions.redeemed)
	}
}

func TestCreateOrderZeroDiscountCouponMatchesNoCoupon(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.promotions.resolveFn = func(context.Context, string, int64) (CouponResolution, error) {
		return CouponResolution{Coupon: domain.Coupon{Code: "NOOP"}}, nil
	}
	withCoupon, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), CouponCode: "NOOP"})
	if err != nil {
		t.Fatalf("CreateOrder with coupon: %v", err)
	}
	without, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems()})
	if err != nil {
		t.Fatalf("CreateOrder without coupon: %v", err)
	}
	if !withCoupon.Breakdown.Equal(without.Breakdown) {
		t.Fatalf("expected identical breakdowns, got %#v and %#v", withCoupon.Breakdown, without.Breakdown)
	}
}

func TestCreateOrderRejectedCoupon(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.promotions.resolveFn = func(context.Context, string, int64) (CouponResolution, error) {
		return CouponResolution{}, ErrPromotionExpired
	}
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), CouponCode: "OLD"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestCreateOrderCouponRedeemFailureIsLogged(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.promotions.resolveFn = func(context.Context, string, int64) (CouponResolution, error) {
		return CouponResolution{Coupon: domain.Coupon{Code: "SAVE10"}, Discount: 100}, nil
	}
	f.promotions.redeemErr = ErrPromotionUnavailable
	if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), CouponCode: "SAVE10"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !f.hasLog("order.coupon.redeem_failed") {
		t.Fatalf("expected redeem failure to be logged, got %v", f.logged)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	tests := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{name: "empty cart", cmd: CreateOrderCommand{}, want: ErrPricingEmptyCart},
		{name: "zero quantity", cmd: CreateOrderCommand{Items: []LineItem{pricedItem(100, 0)}}, want: ErrPricingInvalidLineItem},
		{name: "negative price", cmd: CreateOrderCommand{Items: []LineItem{pricedItem(-1, 1)}}, want: ErrPricingInvalidLineItem},
		{name: "bad email", cmd: CreateOrderCommand{Items: scenarioItems(), Customer: Customer{Email: "not-an-email"}}, want: ErrOrderInvalidInput},
		{name: "negative discount", cmd: CreateOrderCommand{Items: scenarioItems(), Discount: -5}, want: ErrOrderInvalidInput},
		{name: "discount without coupon", cmd: CreateOrderCommand{Items: scenarioItems(), Discount: 500}, want: ErrOrderInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if f.repo.inserts != 0 {
		t.Fatalf("expected no persistence")
	}
}

func TestCreateOrderRetriesOnOrderNumberCollision(t *testing.T) {
	numbers := []string{"ORD-AAAAAAAA", "ORD-AAAAAAAA", "ORD-BBBBBBBB"}
	var calls int
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.OrderNumbers = func() (string, error) {
			n := numbers[calls]
			calls++
			return n, nil
		}
	})

	first, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems()})
	if err != nil {
		t.Fatalf("first CreateOrder: %v", err)
	}
	second, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems()})
	if err != nil {
		t.Fatalf("second CreateOrder: %v", err)
	}
	if first.OrderNumber != "ORD-AAAAAAAA" || second.OrderNumber != "ORD-BBBBBBBB" {
		t.Fatalf("unexpected numbers %s %s", first.OrderNumber, second.OrderNumber)
	}
	if !f.hasLog("order.number.collision") {
		t.Fatalf("expected collision to be logged")
	}
}

func TestCreateOrderNumberAttemptsExhausted(t *testing.T) {
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.NumberAttempts = 3
		deps.OrderNumbers = func() (string, error) { return "ORD-SAMESAME", nil }
	})
	f.repo.put(domain.Order{ID: "existing", OrderNumber: "ORD-SAMESAME"})

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems()})
	if !errors.Is(err, ErrOrderNumberExhausted) {
		t.Fatalf("expected ErrOrderNumberExhausted, got %v", err)
	}
	if f.repo.inserts != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.repo.inserts)
	}
	if errors.Is(err, ErrOrderReconciliation) {
		t.Fatalf("unpaid order should not require reconciliation")
	}
}

func TestCreateOrderReconciliationAfterCapturedPayment(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.payments.details = succeededPayment(12960)
	f.repo.insertErr = stubRepositoryError{unavailable: true}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi_captured"})
	if !errors.Is(err, ErrOrderReconciliation) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	var recErr *ReconciliationError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *ReconciliationError, got %T", err)
	}
	if recErr.PaymentIntentID != "pi_captured" || recErr.AmountMinor != 12960 {
		t.Fatalf("unexpected reconciliation details %#v", recErr)
	}
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected underlying cause to be preserved, got %v", err)
	}
	if !f.hasLog("order.reconciliation_required") {
		t.Fatalf("expected reconciliation log")
	}
	if len(f.dispatcher.created) != 0 {
		t.Fatalf("no notification expected for unstored order")
	}
}

func TestCreateOrderPaymentIntentBacksOneOrder(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	f.payments.details = succeededPayment(12960)
	cmd := CreateOrderCommand{
		Customer:        Customer{UserID: "user-1", Email: "jane@example.com"},
		Items:           scenarioItems(),
		PaymentIntentID: "pi_once",
	}

	first, err := f.svc.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first CreateOrder: %v", err)
	}
	for attempt := 1; attempt < 3; attempt++ {
		replay, err := f.svc.CreateOrder(context.Background(), cmd)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if replay.ID != first.ID || replay.OrderNumber != first.OrderNumber {
			t.Fatalf("attempt %d: expected the stored order back, got %s", attempt, replay.ID)
		}
	}
	if got := f.repo.paidOrdersFor("pi_once"); got != 1 {
		t.Fatalf("expected one paid order for the intent, got %d", got)
	}
	if len(f.dispatcher.created) != 1 {
		t.Fatalf("replays must not notify again, got %d notifications", len(f.dispatcher.created))
	}
}

func TestCreateOrderRejectsIntentReuse(t *testing.T) {
	tests := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{name: "different cart", cmd: CreateOrderCommand{
			Customer: Customer{UserID: "user-1"},
			Items:    []LineItem{pricedItem(6000, 2)},
		}},
		{name: "different customer", cmd: CreateOrderCommand{
			Customer: Customer{UserID: "user-2"},
			Items:    scenarioItems(),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, nil)
			f.payments.details = succeededPayment(12960)
			if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
				Customer:        Customer{UserID: "user-1"},
				Items:           scenarioItems(),
				PaymentIntentID: "pi_once",
			}); err != nil {
				t.Fatalf("first CreateOrder: %v", err)
			}

			tc.cmd.PaymentIntentID = "pi_once"
			_, err := f.svc.CreateOrder(context.Background(), tc.cmd)
			if !errors.Is(err, ErrPaymentAlreadyUsed) {
				t.Fatalf("expected ErrPaymentAlreadyUsed, got %v", err)
			}
			if f.repo.count() != 1 || f.repo.paidOrdersFor("pi_once") != 1 {
				t.Fatalf("expected a single stored order, got %d", f.repo.count())
			}
			if !f.hasLog("order.payment_reused") {
				t.Fatalf("expected reuse to be logged, got %v", f.logged)
			}
		})
	}
}

func TestCreateOrderConcurrentIntentReservation(t *testing.T) {
	stored := domain.Order{
		ID:              "order-winner",
		OrderNumber:     "ORD-WINNER01",
		Customer:        Customer{UserID: "user-1"},
		Items:           scenarioItems(),
		Breakdown:       PriceBreakdown{Currency: "USD", Subtotal: 12000, Tax: 960, Total: 12960},
		Status:          domain.OrderStatusProcessing,
		PaymentStatus:   domain.PaymentStatusPaid,
		PaymentIntentID: "pi_race",
	}

	t.Run("same cart returns the winner", func(t *testing.T) {
		f := newOrderServiceFixture(t, nil)
		f.payments.details = succeededPayment(12960)
		f.repo.beforeInsert = func() { f.repo.put(stored) }

		order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
			Customer:        Customer{UserID: "user-1"},
			Items:           scenarioItems(),
			PaymentIntentID: "pi_race",
		})
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		if order.ID != stored.ID {
			t.Fatalf("expected the concurrently stored order, got %s", order.ID)
		}
		if f.repo.paidOrdersFor("pi_race") != 1 || f.hasLog("order.reconciliation_required") {
			t.Fatalf("expected no second order and no reconciliation")
		}
	})

	t.Run("other customer is refused", func(t *testing.T) {
		f := newOrderServiceFixture(t, nil)
		f.payments.details = succeededPayment(12960)
		f.repo.beforeInsert = func() { f.repo.put(stored) }

		_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
			Customer:        Customer{UserID: "user-9"},
			Items:           scenarioItems(),
			PaymentIntentID: "pi_race",
		})
		if !errors.Is(err, ErrPaymentAlreadyUsed) || errors.Is(err, ErrOrderReconciliation) {
			t.Fatalf("expected ErrPaymentAlreadyUsed, got %v", err)
		}
	})
}

func TestCreateOrderRejectsClientDiscountAgainstCheaperPayment(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	// 53.19 was paid for a 40.00 cart.
	f.payments.details = payments.PaymentDetails{
		Status:         payments.StatusSucceeded,
		Amount:         5319,
		AmountReceived: 5319,
		Currency:       "usd",
		Metadata:       map[string]string{"subtotal": "4000"},
	}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           []LineItem{pricedItem(100000, 1)},
		Discount:        108000 - 5319,
		PaymentIntentID: "pi_cheap",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
	if f.repo.inserts != 0 || len(f.payments.calls) != 0 {
		t.Fatalf("expected rejection before payment lookup and persistence")
	}
}

func TestCreateOrderIntentMustMatchCheckoutCart(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		coupon   string
		userID   string
		want     error
	}{
		{name: "created outside checkout", metadata: nil, want: ErrOrderAmountMismatch},
		{name: "subtotal differs", metadata: map[string]string{"subtotal": "9999"}, want: ErrOrderAmountMismatch},
		{name: "coupon dropped", metadata: map[string]string{"subtotal": "12000", "coupon_code": "SAVE10"}, want: ErrOrderAmountMismatch},
		{name: "coupon added", metadata: map[string]string{"subtotal": "12000"}, coupon: "NOOP", want: ErrOrderAmountMismatch},
		{name: "other customer", metadata: map[string]string{"subtotal": "12000", "user_id": "user-1"}, userID: "user-2", want: ErrPaymentAlreadyUsed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, nil)
			f.promotions.resolveFn = func(context.Context, string, int64) (CouponResolution, error) {
				return CouponResolution{Coupon: domain.Coupon{Code: "NOOP"}}, nil
			}
			details := succeededPayment(12960)
			details.Metadata = tc.metadata
			f.payments.details = details

			_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
				Customer:        Customer{UserID: tc.userID},
				Items:           scenarioItems(),
				CouponCode:      tc.coupon,
				PaymentIntentID: "pi_bound",
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.repo.inserts != 0 {
				t.Fatalf("expected no persistence")
			}
		})
	}
}

func TestCreateOrderComparesCapturedAmount(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	details := succeededPayment(12960)
	details.AmountReceived = 0
	f.payments.details = details

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi_uncaptured"})
	if !errors.Is(err, ErrOrderAmountMismatch) {
		t.Fatalf("expected ErrOrderAmountMismatch, got %v", err)
	}

	details.Amount = 99999
	details.AmountReceived = 12960
	f.payments.details = details
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{Items: scenarioItems(), PaymentIntentID: "pi_captured"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid order, got %s", order.PaymentStatus)
	}
}

func seedOrder(f *orderServiceFixture, status domain.OrderStatus) domain.Order {
	order := domain.Order{
		ID:          "order-seed",
		OrderNumber: "ORD-SEED0001",
		Status:      status,
		Version:     1,
		Customer:    domain.Customer{Email: "jane@example.com"},
		CreatedAt:   f.now.Add(-time.Hour),
		UpdatedAt:   f.now.Add(-time.Hour),
	}
	f.repo.put(order)
	return order
}

func TestSetStatusFollowsTransitionTable(t *testing.T) {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefunded,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			if from == to {
				continue
			}
			f := newOrderServiceFixture(t, nil)
			seeded := seedOrder(f, from)
			_, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: string(to)})
			if CanTransition(from, to) {
				if err != nil {
					t.Fatalf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrOrderIllegalTransition) {
				t.Fatalf("%s -> %s: expected ErrOrderIllegalTransition, got %v", from, to, err)
			}
			if f.repo.updates != 0 {
				t.Fatalf("%s -> %s: illegal transition must not write", from, to)
			}
		}
	}
}

func TestSetStatusStampsTimestampsAndNotifies(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusProcessing)

	order, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: "SHIPPED", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil || !order.ShippedAt.Equal(f.now) {
		t.Fatalf("expected shipped with timestamp, got %#v", order)
	}
	if order.Version != 2 {
		t.Fatalf("expected version bump, got %d", order.Version)
	}
	stored, _ := f.repo.FindByID(context.Background(), seeded.ID)
	if stored.Status != domain.OrderStatusShipped {
		t.Fatalf("expected stored status shipped, got %s", stored.Status)
	}
	if len(f.dispatcher.changed) != 1 || f.dispatcher.changed[0].previous != domain.OrderStatusProcessing {
		t.Fatalf("expected one status notification, got %#v", f.dispatcher.changed)
	}
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusShipped)

	order, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: "shipped"})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if order.Version != seeded.Version {
		t.Fatalf("expected unchanged order")
	}
	if f.repo.updates != 0 || len(f.dispatcher.changed) != 0 {
		t.Fatalf("expected no write and no notification")
	}
}

func TestSetStatusErrors(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusPending)

	if _, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: "lost"}); !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected ErrOrderInvalidStatus, got %v", err)
	}
	if _, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "missing", Status: "processing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{Status: "processing"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestSetStatusConcurrentWriterConflict(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusProcessing)
	f.repo.updateErr = stubRepositoryError{conflict: true}

	_, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: "shipped"})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if len(f.dispatcher.changed) != 0 {
		t.Fatalf("no notification expected on conflict")
	}
}

func TestStatusChangeToPendingNeverNotifies(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusProcessing)

	if _, err := f.svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: seeded.ID, Status: "pending"}); !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected processing -> pending to be illegal, got %v", err)
	}
	order, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{
		OrderID: seeded.ID, Status: "pending", ActorID: "admin-1", Reason: "payment reversed",
	})
	if err != nil {
		t.Fatalf("OverrideStatus: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if len(f.dispatcher.changed) != 0 {
		t.Fatalf("pending must not notify, got %#v", f.dispatcher.changed)
	}

	for _, target := range []string{"processing", "shipped", "delivered", "refunded", "cancelled"} {
		if _, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{
			OrderID: seeded.ID, Status: target, ActorID: "admin-1", Reason: "correction",
		}); err != nil {
			t.Fatalf("OverrideStatus %s: %v", target, err)
		}
	}
	if len(f.dispatcher.changed) != 5 {
		t.Fatalf("expected a notification for every non-pending status, got %d", len(f.dispatcher.changed))
	}
}

func TestOverrideStatusRecordsAudit(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusCancelled)

	order, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{
		OrderID:   seeded.ID,
		Status:    "processing",
		ActorID:   "admin-7",
		Reason:    "cancelled by mistake",
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("OverrideStatus: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", order.Status)
	}
	if len(f.audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(f.audit.records))
	}
	rec := f.audit.records[0]
	if rec.Action != "order.status.override" || rec.TargetRef != "orders/"+seeded.ID || rec.Actor != "admin-7" {
		t.Fatalf("unexpected audit record %#v", rec)
	}
	if rec.Reason != "cancelled by mistake" || rec.RequestID != "req-1" {
		t.Fatalf("unexpected audit reason/request %#v", rec)
	}
	if diff := rec.Diff["status"]; diff.Before != "cancelled" || diff.After != "processing" {
		t.Fatalf("unexpected diff %#v", rec.Diff)
	}
	if allowed, _ := rec.Metadata["allowedByFlow"].(bool); allowed {
		t.Fatalf("cancelled -> processing is outside the table")
	}
}

func TestOverrideStatusValidation(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusPending)

	if _, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{OrderID: seeded.ID, Status: "shipped", ActorID: "a"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected reason to be required, got %v", err)
	}
	if _, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{OrderID: seeded.ID, Status: "shipped", Reason: "r"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected actor to be required, got %v", err)
	}
	if f.repo.updates != 0 || len(f.audit.records) != 0 {
		t.Fatalf("validation failures must not write")
	}
}

func TestOverrideStatusAuditFailureAborts(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusPending)
	f.audit.err = ErrAuditUnavailable

	_, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{
		OrderID: seeded.ID, Status: "delivered", ActorID: "a", Reason: "r",
	})
	if !errors.Is(err, ErrAuditUnavailable) {
		t.Fatalf("expected audit failure, got %v", err)
	}
	if len(f.dispatcher.changed) != 0 {
		t.Fatalf("no notification expected when the override fails")
	}
}

func TestOverrideStatusSameStatusIsNoop(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusDelivered)

	if _, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{
		OrderID: seeded.ID, Status: "delivered", ActorID: "a", Reason: "r",
	}); err != nil {
		t.Fatalf("OverrideStatus: %v", err)
	}
	if f.repo.updates != 0 || len(f.audit.records) != 0 || len(f.dispatcher.changed) != 0 {
		t.Fatalf("expected no write, audit, or notification")
	}
}

func TestOverrideStatusRequiresAuditLog(t *testing.T) {
	f := newOrderServiceFixture(t, func(deps *OrderServiceDeps) { deps.Audit = nil })
	seeded := seedOrder(f, domain.OrderStatusPending)
	_, err := f.svc.OverrideStatus(context.Background(), OverrideOrderStatusCommand{OrderID: seeded.ID, Status: "shipped", ActorID: "a", Reason: "r"})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected ErrOrderUnavailable, got %v", err)
	}
}

func TestListOrdersPaginationAndFilters(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	for i := 0; i < 25; i++ {
		status := domain.OrderStatusPending
		if i%5 == 0 {
			status = domain.OrderStatusShipped
		}
		f.repo.put(domain.Order{
			ID:          fmt.Sprintf("o-%02d", i),
			OrderNumber: fmt.Sprintf("ORD-%08d", i),
			Customer:    domain.Customer{UserID: "user-1"},
			Status:      status,
			CreatedAt:   f.now.Add(time.Duration(i) * time.Minute),
		})
	}

	page, err := f.svc.ListOrders(context.Background(), OrderListFilter{UserID: "user-1", Page: 2})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.Total != 25 || len(page.Items) != 5 {
		t.Fatalf("expected default page size 20, got total=%d items=%d", page.Total, len(page.Items))
	}

	shipped, err := f.svc.ListOrders(context.Background(), OrderListFilter{Status: []OrderStatus{domain.OrderStatusShipped}, PageSize: 500})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if shipped.Total != 5 {
		t.Fatalf("expected 5 shipped, got %d", shipped.Total)
	}

	if _, err := f.svc.ListOrders(context.Background(), OrderListFilter{Status: []OrderStatus{"lost"}}); !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected ErrOrderInvalidStatus, got %v", err)
	}
}

func TestGetOrder(t *testing.T) {
	f := newOrderServiceFixture(t, nil)
	seeded := seedOrder(f, domain.OrderStatusPending)
	got, err := f.svc.GetOrder(context.Background(), " "+seeded.ID+" ")
	if err != nil || got.ID != seeded.ID {
		t.Fatalf("GetOrder: %v %#v", err, got)
	}
	if _, err := f.svc.GetOrder(context.Background(), "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestNewOrderServiceRequiresDependencies(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{Pricing: newTestPricingEngine(t)}); err == nil {
		t.Fatalf("expected error without repository")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: newMemOrderRepo()}); err == nil {
		t.Fatalf("expected error without pricing engine")
	}
}

func TestOrderNumberShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n, err := NewOrderNumber()
		if err != nil {
			t.Fatalf("NewOrderNumber: %v", err)
		}
		if !IsOrderNumber(n) {
			t.Fatalf("unexpected shape %q", n)
		}
		seen[n] = true
	}
	if len(seen) < 190 {
		t.Fatalf("order numbers look non-random: %d unique of 200", len(seen))
	}
}
