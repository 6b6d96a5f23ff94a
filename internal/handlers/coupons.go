package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
	"github.com/raistore/storefront/internal/services"
)

const (
	defaultCouponValidateRateLimit = 30
	couponValidateScope            = "coupons.validate"
)

// CouponHandlers exposes coupon listing, validation and admin maintenance.
type CouponHandlers struct {
	authn      *auth.Authenticator
	promotions services.PromotionService
	limiter    *ipRateLimiter
}

// CouponHandlersOption customises CouponHandlers.
type CouponHandlersOption func(*CouponHandlers)

// WithCouponValidateRateLimit limits coupon validation per client IP so codes cannot be enumerated cheaply.
// A non-positive limit disables limiting.
func WithCouponValidateRateLimit(limit int, window time.Duration, clock func() time.Time) CouponHandlersOption {
	return func(h *CouponHandlers) {
		h.limiter = newIPRateLimiter(couponValidateScope, limit, window, clock)
	}
}

// NewCouponHandlers constructs coupon handlers.
func NewCouponHandlers(authn *auth.Authenticator, promotions services.PromotionService, opts ...CouponHandlersOption) *CouponHandlers {
	h := &CouponHandlers{
		authn:      authn,
		promotions: promotions,
		limiter:    newIPRateLimiter(couponValidateScope, defaultCouponValidateRateLimit, time.Minute, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers public coupon endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/coupons", h.listActive)
	r.Post("/coupons/validate", h.validate)
}

// AdminRoutes registers coupon maintenance under /admin.
func (h *CouponHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	group.Post("/coupons", h.createCoupon)
	group.Put("/coupons/{couponID}", h.updateCoupon)
	group.Post("/coupons/{couponID}:deactivate", h.deactivateCoupon)
}

// couponPayload carries fixed amounts and minimums as decimal currency; percentage values are whole percents.
type couponPayload struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Description    string          `json:"description,omitempty"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxUses        *int            `json:"maxUses,omitempty"`
	UsedCount      int             `json:"usedCount"`
	ExpiresAt      string          `json:"expiresAt,omitempty"`
	IsActive       bool            `json:"isActive"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

type couponRequest struct {
	Code           string          `json:"code"`
	Description    string          `json:"description"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxUses        *int            `json:"maxUses"`
	ExpiresAt      string          `json:"expiresAt"`
	IsActive       *bool           `json:"isActive"`
}

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type validateCouponResponse struct {
	Coupon   couponPayload   `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponListResponse struct {
	Coupons []couponPayload `json:"coupons"`
}

func (h *CouponHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	coupons, err := h.promotions.ListActiveCoupons(ctx)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	payload := make([]couponPayload, 0, len(coupons))
	for _, coupon := range coupons {
		payload = append(payload, buildCouponPayload(coupon))
	}
	httpx.WriteJSON(w, http.StatusOK, couponListResponse{Coupons: payload})
}

func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	if !h.limiter.guard(ctx, w, r, "too many coupon checks; try again shortly") {
		return
	}
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	subtotal, err := minorUnitsOf("subtotal", req.Subtotal)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	resolution, err := h.promotions.ResolveCoupon(ctx, req.Code, subtotal)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validateCouponResponse{
		Coupon:   buildCouponPayload(resolution.Coupon),
		Discount: domain.FromMinorUnits(resolution.Discount),
	})
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleAdmin); !ok {
		return
	}
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	coupon, err := h.promotions.CreateCoupon(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleAdmin); !ok {
		return
	}
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	cmd.ID = strings.TrimSpace(chi.URLParam(r, "couponID"))
	coupon, err := h.promotions.UpdateCoupon(ctx, cmd)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	if _, ok := requireRole(ctx, w, auth.RoleAdmin); !ok {
		return
	}
	coupon, err := h.promotions.DeactivateCoupon(ctx, strings.TrimSpace(chi.URLParam(r, "couponID")))
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func decodeCouponCommand(w http.ResponseWriter, r *http.Request) (services.UpsertCouponCommand, bool) {
	var req couponRequest
	if !decodeBody(w, r, &req) {
		return services.UpsertCouponCommand{}, false
	}
	expiresAt, err := parseOptionalTime(req.ExpiresAt)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "expiresAt must be an RFC3339 timestamp", http.StatusBadRequest))
		return services.UpsertCouponCommand{}, false
	}
	cmd := services.UpsertCouponCommand{
		Code:           req.Code,
		Description:    req.Description,
		DiscountType:   req.DiscountType,
		DiscountValue:  couponValueToMinor(req.DiscountType, req.DiscountValue),
		MinOrderAmount: domain.ToMinorUnits(req.MinOrderAmount),
		MaxUses:        req.MaxUses,
		ExpiresAt:      expiresAt,
		IsActive:       true,
	}
	if req.IsActive != nil {
		cmd.IsActive = *req.IsActive
	}
	return cmd, true
}

func couponValueToMinor(discountType string, value decimal.Decimal) int64 {
	if strings.EqualFold(strings.TrimSpace(discountType), string(domain.CouponDiscountFixed)) {
		return domain.ToMinorUnits(value)
	}
	return value.Round(0).IntPart()
}

func buildCouponPayload(coupon domain.Coupon) couponPayload {
	value := decimal.NewFromInt(coupon.DiscountValue)
	if coupon.DiscountType == domain.CouponDiscountFixed {
		value = domain.FromMinorUnits(coupon.DiscountValue)
	}
	return couponPayload{
		ID:             coupon.ID,
		Code:           coupon.Code,
		Description:    coupon.Description,
		DiscountType:   string(coupon.DiscountType),
		DiscountValue:  value,
		MinOrderAmount: domain.FromMinorUnits(coupon.MinOrderAmount),
		MaxUses:        coupon.MaxUses,
		UsedCount:      coupon.UsedCount,
		ExpiresAt:      formatTimePtr(coupon.ExpiresAt),
		IsActive:       coupon.IsActive,
		CreatedAt:      formatTime(coupon.CreatedAt),
		UpdatedAt:      formatTime(coupon.UpdatedAt),
	}
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPromotionInvalidCode),
		errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionInactive),
		errors.Is(err, services.ErrPromotionExpired),
		errors.Is(err, services.ErrPromotionUsageExhausted),
		errors.Is(err, services.ErrPromotionMinimumNotMet):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_applicable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPromotionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPromotionUnavailable):
		serviceUnavailable(ctx, w, "promotion")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}
