package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/payments"
	"github.com/raistore/storefront/internal/repositories"
)

type stubRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepositoryError) Error() string       { return "repository error" }
func (e stubRepositoryError) IsNotFound() bool    { return e.notFound }
func (e stubRepositoryError) IsConflict() bool    { return e.conflict }
func (e stubRepositoryError) IsUnavailable() bool { return e.unavailable }

// memOrderRepo enforces unique order numbers and payment intents and compare-and-set status updates.
type memOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	numbers   map[string]string
	intents   map[string]string
	insertErr error
	updateErr error
	inserts   int
	updates   int

	// beforeInsert runs ahead of each insert to simulate a concurrent writer.
	beforeInsert func()
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]domain.Order{}, numbers: map[string]string{}, intents: map[string]string{}}
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return r.insertErr
	}
	if order.PaymentIntentID != "" {
		if _, taken := r.intents[order.PaymentIntentID]; taken {
			return reservedIntentError{}
		}
	}
	if _, taken := r.numbers[order.OrderNumber]; taken {
		return stubRepositoryError{conflict: true}
	}
	r.numbers[order.OrderNumber] = order.ID
	if order.PaymentIntentID != "" {
		r.intents[order.PaymentIntentID] = order.ID
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.intents[intentID]
	if !ok {
		return domain.Order{}, stubRepositoryError{notFound: true}
	}
	return r.orders[orderID], nil
}

func (r *memOrderRepo) paidOrdersFor(intentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, order := range r.orders {
		if order.PaymentIntentID == intentID && order.PaymentStatus == domain.PaymentStatusPaid {
			n++
		}
	}
	return n
}

// reservedIntentError is the conflict a repository reports for an intent held by another order.
type reservedIntentError struct{ stubRepositoryError }

func (reservedIntentError) IsConflict() bool { return true }
func (reservedIntentError) Unwrap() error    { return repositories.ErrPaymentIntentReserved }

func (r *memOrderRepo) UpdateStatus(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.orders[order.ID]
	if !ok {
		return stubRepositoryError{notFound: true}
	}
	if stored.Status != expected {
		return stubRepositoryError{conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, stubRepositoryError{notFound: true}
	}
	return order, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.Customer.UserID != filter.UserID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, order.Status) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	start := filter.Pagination.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Pagination.PageSize
	if end > total {
		end = total
	}
	return domain.Page[domain.Order]{Items: matched[start:end], Total: total}, nil
}

func (r *memOrderRepo) put(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	r.numbers[order.OrderNumber] = order.ID
	if order.PaymentIntentID != "" {
		r.intents[order.PaymentIntentID] = order.ID
	}
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func containsStatus(list []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// stubCatalog serves FindProduct from a map; other catalog operations are unused by pricing.
type stubCatalog struct {
	CatalogService
	products map[string]domain.Product
	err      error
}

func (s *stubCatalog) FindProduct(_ context.Context, productID string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, ErrCatalogProductNotFound
	}
	return product, nil
}

func (s *stubCatalog) UpsertProduct(_ context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	return cmd.Product, nil
}

type stubPromotions struct {
	resolveFn func(ctx context.Context, code string, subtotal int64) (CouponResolution, error)
	redeemed  []string
	redeemErr error
}

func (s *stubPromotions) ResolveCoupon(ctx context.Context, code string, subtotal int64) (CouponResolution, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, code, subtotal)
	}
	return CouponResolution{}, ErrPromotionNotFound
}

func (s *stubPromotions) RedeemCoupon(_ context.Context, code string) error {
	s.redeemed = append(s.redeemed, code)
	return s.redeemErr
}

func (s *stubPromotions) ListActiveCoupons(context.Context) ([]domain.Coupon, error) {
	return nil, nil
}

func (s *stubPromotions) CreateCoupon(context.Context, UpsertCouponCommand) (domain.Coupon, error) {
	return domain.Coupon{}, errors.New("not implemented")
}

func (s *stubPromotions) UpdateCoupon(context.Context, UpsertCouponCommand) (domain.Coupon, error) {
	return domain.Coupon{}, errors.New("not implemented")
}

func (s *stubPromotions) DeactivateCoupon(context.Context, string) (domain.Coupon, error) {
	return domain.Coupon{}, errors.New("not implemented")
}

type stubPaymentLookup struct {
	details payments.PaymentDetails
	err     error
	calls   []string
}

func (s *stubPaymentLookup) LookupPayment(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	s.calls = append(s.calls, req.IntentID)
	if s.err != nil {
		return payments.PaymentDetails{}, s.err
	}
	details := s.details
	if details.IntentID == "" {
		details.IntentID = req.IntentID
	}
	return details, nil
}

type stubAudit struct {
	records []AuditLogRecord
	err     error
}

func (s *stubAudit) Record(_ context.Context, record AuditLogRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *stubAudit) ListByTarget(context.Context, string, int) ([]domain.AuditLogEntry, error) {
	return nil, nil
}

type dispatchedStatus struct {
	order    domain.Order
	previous domain.OrderStatus
}

type recordingDispatcher struct {
	mu      sync.Mutex
	created []domain.Order
	changed []dispatchedStatus
}

func (d *recordingDispatcher) DispatchOrderCreated(_ context.Context, order domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, order)
}

func (d *recordingDispatcher) DispatchStatusChanged(_ context.Context, order domain.Order, previous domain.OrderStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, dispatchedStatus{order: order, previous: previous})
}

type stubCouponRepo struct {
	coupons     map[string]domain.Coupon
	findErr     error
	inserted    []domain.Coupon
	updated     []domain.Coupon
	incremented []string
	listNow     time.Time
}

func newStubCouponRepo(coupons ...domain.Coupon) *stubCouponRepo {
	repo := &stubCouponRepo{coupons: map[string]domain.Coupon{}}
	for _, c := range coupons {
		repo.coupons[c.ID] = c
	}
	return repo
}

func (r *stubCouponRepo) Insert(_ context.Context, coupon domain.Coupon) error {
	r.inserted = append(r.inserted, coupon)
	r.coupons[coupon.ID] = coupon
	return nil
}

func (r *stubCouponRepo) Update(_ context.Context, coupon domain.Coupon) error {
	r.updated = append(r.updated, coupon)
	r.coupons[coupon.ID] = coupon
	return nil
}

func (r *stubCouponRepo) FindByID(_ context.Context, id string) (domain.Coupon, error) {
	if r.findErr != nil {
		return domain.Coupon{}, r.findErr
	}
	coupon, ok := r.coupons[id]
	if !ok {
		return domain.Coupon{}, stubRepositoryError{notFound: true}
	}
	return coupon, nil
}

func (r *stubCouponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	if r.findErr != nil {
		return domain.Coupon{}, r.findErr
	}
	for _, coupon := range r.coupons {
		if coupon.Code == code {
			return coupon, nil
		}
	}
	return domain.Coupon{}, stubRepositoryError{notFound: true}
}

func (r *stubCouponRepo) ListActive(_ context.Context, now time.Time) ([]domain.Coupon, error) {
	r.listNow = now
	var out []domain.Coupon
	for _, coupon := range r.coupons {
		if coupon.IsActive {
			out = append(out, coupon)
		}
	}
	return out, nil
}

func (r *stubCouponRepo) IncrementUsage(_ context.Context, couponID string) error {
	r.incremented = append(r.incremented, couponID)
	return nil
}
