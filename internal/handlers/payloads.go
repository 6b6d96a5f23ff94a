package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/platform/auth"
	"github.com/raistore/storefront/internal/platform/httpx"
)

const maxJSONBody = 64 * 1024

// lineItemPayload is the cart line shape shared by the storefront client. Prices are decimal currency amounts.
type lineItemPayload struct {
	ProductID     string          `json:"productId"`
	ProductKind   string          `json:"productKind,omitempty"`
	Name          string          `json:"name"`
	Brand         string          `json:"brand,omitempty"`
	Image         string          `json:"image,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	SelectedColor string          `json:"selectedColor,omitempty"`
	SelectedSize  string          `json:"selectedSize,omitempty"`
}

type addressPayload struct {
	Line       string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"state,omitempty"`
	PostalCode string `json:"zip,omitempty"`
}

type breakdownPayload struct {
	Currency string          `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// productRefOf honours an explicit kind and falls back to the 24 hex id heuristic for older clients.
func productRefOf(item lineItemPayload) (domain.ProductRef, error) {
	id := strings.TrimSpace(item.ProductID)
	switch strings.ToLower(strings.TrimSpace(item.ProductKind)) {
	case "":
		return domain.InferProductRef(id), nil
	case string(domain.ProductRefCatalog):
		if id == "" {
			return domain.ProductRef{}, errors.New("catalog items require productId")
		}
		return domain.CatalogRef(id), nil
	case string(domain.ProductRefUntracked):
		ref := domain.UntrackedRef()
		ref.ID = id
		return ref, nil
	default:
		return domain.ProductRef{}, errors.New("productKind must be catalog or untracked")
	}
}

// minorUnitsOf converts a wire amount, naming the field when it does not fit.
func minorUnitsOf(field string, amount decimal.Decimal) (int64, error) {
	minor, err := domain.ParseMinorUnits(amount)
	if err != nil {
		return 0, fmt.Errorf("%s is out of range", field)
	}
	return minor, nil
}

func lineItemsFromPayload(items []lineItemPayload) ([]domain.LineItem, error) {
	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		ref, err := productRefOf(item)
		if err != nil {
			return nil, err
		}
		price, err := minorUnitsOf("price", item.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.LineItem{
			ProductRef:    ref,
			Name:          strings.TrimSpace(item.Name),
			Brand:         strings.TrimSpace(item.Brand),
			ImageURL:      strings.TrimSpace(item.Image),
			UnitPrice:     price,
			Quantity:      item.Quantity,
			SelectedColor: strings.TrimSpace(item.SelectedColor),
			SelectedSize:  strings.TrimSpace(item.SelectedSize),
		})
	}
	return out, nil
}

func lineItemPayloads(items []domain.LineItem) []lineItemPayload {
	out := make([]lineItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemPayload{
			ProductID:     item.ProductRef.ID,
			ProductKind:   string(item.ProductRef.Kind),
			Name:          item.Name,
			Brand:         item.Brand,
			Image:         item.ImageURL,
			Price:         domain.FromMinorUnits(item.UnitPrice),
			Quantity:      item.Quantity,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
		})
	}
	return out
}

func breakdownPayloadOf(b domain.PriceBreakdown) breakdownPayload {
	return breakdownPayload{
		Currency: b.Currency,
		Subtotal: domain.FromMinorUnits(b.Subtotal),
		Shipping: domain.FromMinorUnits(b.Shipping),
		Tax:      domain.FromMinorUnits(b.Tax),
		Discount: domain.FromMinorUnits(b.Discount),
		Total:    domain.FromMinorUnits(b.Total),
	}
}

func addressFromPayload(p *addressPayload) *domain.Address {
	if p == nil {
		return nil
	}
	return &domain.Address{Line: p.Line, City: p.City, Region: p.Region, PostalCode: p.PostalCode}
}

func addressPayloadOf(a *domain.Address) *addressPayload {
	if a == nil {
		return nil
	}
	return &addressPayload{Line: a.Line, City: a.City, Region: a.Region, PostalCode: a.PostalCode}
}

// decodeBody decodes a JSON request body, writing the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.DecodeJSON(r, maxJSONBody, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, httpx.ErrEmptyBody):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
	}
	return false
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// requireRole enforces roles inside the handler so routes stay protected even when mounted without the auth middleware.
func requireRole(ctx context.Context, w http.ResponseWriter, roles ...string) (*auth.Identity, bool) {
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if !identity.HasAnyRole(roles...) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
