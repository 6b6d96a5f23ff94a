package mailer

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/raistore/storefront/internal/domain"
)

// OrderLine is a rendered order line.
type OrderLine struct {
	Name     string
	Color    string
	Size     string
	Quantity int
	Total    int64
}

// OrderView carries everything the order templates render. Amounts are minor units.
type OrderView struct {
	CustomerName string
	OrderNumber  string
	Currency     string
	Items        []OrderLine
	Subtotal     int64
	Discount     int64
	Shipping     int64
	Tax          int64
	Total        int64
	Address      []string
	OrdersURL    string
}

// StatusView describes a status update email.
type StatusView struct {
	Order   OrderView
	Label   string
	Message string
	Color   template.CSS
}

// Renderer turns order views into messages. Customer supplied text is stripped of markup first.
type Renderer struct {
	policy  *bluemonday.Policy
	printer *message.Printer
	now     func() time.Time
	tmpl    *template.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer(lang language.Tag) (*Renderer, error) {
	r := &Renderer{
		policy:  bluemonday.StrictPolicy(),
		printer: message.NewPrinter(lang),
		now:     time.Now,
	}
	tmpl, err := template.New("mail").Funcs(template.FuncMap{
		"money": func(minor int64, code string) string { return r.FormatMoney(minor, code) },
		"year":  func() int { return r.now().Year() },
		"dict":  dict,
	}).Parse(layoutTemplate + confirmationTemplate + statusTemplate)
	if err != nil {
		return nil, fmt.Errorf("mailer: parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// FormatMoney renders minor units in the currency's conventional notation.
func (r *Renderer) FormatMoney(minor int64, code string) string {
	amount := domain.FromMinorUnits(minor)
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return strings.ToUpper(code) + " " + amount.StringFixed(2)
	}
	return r.printer.Sprint(currency.Symbol(unit.Amount(amount.InexactFloat64())))
}

// OrderConfirmation renders the email sent once an order is stored.
func (r *Renderer) OrderConfirmation(to Address, view OrderView) (Message, error) {
	view = r.cleanOrder(view)
	body, err := r.execute("confirmation", view)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      r.cleanAddress(to),
		Subject: fmt.Sprintf("Order Confirmed - %s", view.OrderNumber),
		HTML:    body,
		Tags:    []string{"order-confirmation"},
	}, nil
}

// StatusUpdate renders the email sent after a status change.
func (r *Renderer) StatusUpdate(to Address, view StatusView) (Message, error) {
	view.Order = r.cleanOrder(view.Order)
	body, err := r.execute("status", view)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      r.cleanAddress(to),
		Subject: fmt.Sprintf("Order %s - %s", view.Label, view.Order.OrderNumber),
		HTML:    body,
		Tags:    []string{"order-status"},
	}, nil
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) cleanOrder(view OrderView) OrderView {
	view.CustomerName = r.clean(view.CustomerName)
	if view.CustomerName == "" {
		view.CustomerName = "there"
	}
	items := make([]OrderLine, len(view.Items))
	for i, item := range view.Items {
		item.Name = r.clean(item.Name)
		item.Color = r.clean(item.Color)
		item.Size = r.clean(item.Size)
		items[i] = item
	}
	view.Items = items
	address := make([]string, 0, len(view.Address))
	for _, line := range view.Address {
		if cleaned := r.clean(line); cleaned != "" {
			address = append(address, cleaned)
		}
	}
	view.Address = address
	return view
}

func (r *Renderer) cleanAddress(addr Address) Address {
	return Address{Name: r.clean(addr.Name), Email: strings.TrimSpace(addr.Email)}
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

// clean strips markup; html/template escapes the result again on output.
func (r *Renderer) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(r.policy.Sanitize(value)))
}

const layoutTemplate = `
{{define "header"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; background: #0f0f0f; color: #f5f5f5; border-radius: 12px; overflow: hidden;">
<div style="background: linear-gradient(135deg, #ff6b00, #ff9d00); padding: 40px 30px; text-align: center;">{{end}}
{{define "footer"}}<div style="background: #1a1a1a; text-align: center; padding: 20px; color: #666; font-size: 12px;">&copy; {{year}} RaiStore. All rights reserved.</div>
</div>{{end}}
{{define "button"}}{{if .URL}}<div style="text-align: center; margin-top: 32px;"><a href="{{.URL}}" style="background: #ff6b00; color: #fff; text-decoration: none; padding: 14px 36px; border-radius: 8px; font-weight: bold;">{{.Label}}</a></div>{{end}}{{end}}
`

const confirmationTemplate = `
{{define "confirmation"}}{{template "header"}}
<h1 style="margin: 0; font-size: 28px; color: #fff;">Order Confirmed!</h1>
<p style="margin: 8px 0 0; color: rgba(255,255,255,0.85);">Order #{{.OrderNumber}}</p>
</div>
<div style="padding: 36px 30px;">
<p style="color: #ccc;">Hi <strong style="color: #fff;">{{.CustomerName}}</strong>, thank you for your purchase! We've received your order.</p>
<h3 style="color: #ff8c00;">Order Summary</h3>
<table style="width: 100%; border-collapse: collapse;">
<tr><th style="text-align: left;">ITEM</th><th>QTY</th><th style="text-align: right;">PRICE</th></tr>
{{range .Items}}<tr><td>{{.Name}}{{if .Size}} ({{.Size}}){{end}}{{if .Color}} {{.Color}}{{end}}</td><td style="text-align: center;">&times;{{.Quantity}}</td><td style="text-align: right;">{{money .Total $.Currency}}</td></tr>
{{end}}</table>
<table style="width: 100%; margin-top: 24px;">
<tr><td>Subtotal</td><td style="text-align: right;">{{money .Subtotal .Currency}}</td></tr>
{{if gt .Discount 0}}<tr><td>Discount</td><td style="text-align: right; color: #4ade80;">-{{money .Discount .Currency}}</td></tr>
{{end}}<tr><td>Shipping</td><td style="text-align: right;">{{if eq .Shipping 0}}FREE{{else}}{{money .Shipping .Currency}}{{end}}</td></tr>
<tr><td>Tax</td><td style="text-align: right;">{{money .Tax .Currency}}</td></tr>
<tr><td><strong>Total</strong></td><td style="text-align: right; color: #ff8c00;"><strong>{{money .Total .Currency}}</strong></td></tr>
</table>
{{if .Address}}<h3 style="color: #ff8c00;">Delivery Address</h3>
<p style="color: #ccc;">{{range $i, $line := .Address}}{{if $i}}<br/>{{end}}{{$line}}{{end}}</p>
{{end}}{{template "button" (dict "URL" .OrdersURL "Label" "View Order Status")}}
</div>
{{template "footer"}}{{end}}
`

const statusTemplate = `
{{define "status"}}{{template "header"}}
<h2 style="margin: 10px 0 0; color: #fff;">Order {{.Label}}</h2>
<p style="margin: 6px 0 0; color: rgba(255,255,255,0.85);">Order #{{.Order.OrderNumber}}</p>
</div>
<div style="padding: 36px 30px;">
<div style="background: #1a1a1a; border-left: 4px solid {{.Color}}; border-radius: 8px; padding: 20px;">
<p style="margin: 0;">Hi <strong>{{.Order.CustomerName}}</strong>,<br/>{{.Message}}</p>
</div>
<p style="color: #888;"><strong>Order Number:</strong> {{.Order.OrderNumber}}<br/>
<strong>Status:</strong> {{.Label}}<br/>
<strong>Total Paid:</strong> {{money .Order.Total .Order.Currency}}</p>
{{template "button" (dict "URL" .Order.OrdersURL "Label" "Track Your Order")}}
</div>
{{template "footer"}}{{end}}
`
