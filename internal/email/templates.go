package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/storefrontapp/storefront/internal/models"
)

const (
	TemplatePaymentReceived = "payment_received"
	TemplateOrderShipped    = "order_shipped"
	TemplateOrderDelivered  = "order_delivered"
	TemplateOrderCancelled  = "order_cancelled"
)

// OrderInfo is the view model shared by every order template.
type OrderInfo struct {
	OrderNumber     int
	CustomerName    string
	CustomerEmail   string
	StoreName       string
	StoreURL        string
	Date            string
	Items           []ItemLine
	Subtotal        string
	Shipping        string
	Tax             string
	Total           string
	ShippingAddress []string
}

type ItemLine struct {
	Title    string
	Variant  string
	Quantity int
	Total    string
}

// BuildOrderInfo renders money and dates for display. when is the event time
// shown in the email.
func BuildOrderInfo(order *models.Order, storeName, storeURL string, when time.Time) *OrderInfo {
	info := &OrderInfo{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		StoreName:     storeName,
		StoreURL:      storeURL,
		Date:          when.Format("January 2, 2006"),
		Subtotal:      FormatAmount(order.ItemsPrice, order.Currency),
		Shipping:      FormatAmount(order.ShippingPrice, order.Currency),
		Tax:           FormatAmount(order.TaxPrice, order.Currency),
		Total:         FormatAmount(order.TotalPrice, order.Currency),
	}
	if info.CustomerName == "" {
		info.CustomerName = order.ShippingAddress.FullName
	}

	for _, item := range order.Items {
		variant := strings.Join(nonEmpty(item.Size, item.Color), " / ")
		info.Items = append(info.Items, ItemLine{
			Title:    item.Title,
			Variant:  variant,
			Quantity: item.Quantity,
			Total:    FormatAmount(item.LineTotal(), order.Currency),
		})
	}

	addr := order.ShippingAddress
	info.ShippingAddress = nonEmpty(
		addr.FullName,
		addr.Line1,
		addr.Line2,
		strings.Join(nonEmpty(addr.City, addr.State, addr.PostalCode), ", "),
		addr.Country,
	)
	return info
}

var currencySymbols = map[string]string{
	"inr": "₹",
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

// FormatAmount renders an amount in the smallest currency unit, e.g.
// 110000 inr as ₹1,100.00.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	whole := fmt.Sprintf("%d", minor/100)
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	prefix, ok := currencySymbols[strings.ToLower(currency)]
	if !ok {
		prefix = strings.ToUpper(currency) + " "
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, prefix, grouped.String(), minor%100)
}

type emailTemplate struct {
	subject string
	html    string
	text    string
}

var templates = map[string]emailTemplate{
	TemplatePaymentReceived: {
		subject: "Payment received for order #{{.OrderNumber}}",
		html:    paymentReceivedHTML,
		text:    paymentReceivedText,
	},
	TemplateOrderShipped: {
		subject: "Order #{{.OrderNumber}} has shipped",
		html:    statusHTML,
		text:    statusText,
	},
	TemplateOrderDelivered: {
		subject: "Order #{{.OrderNumber}} was delivered",
		html:    statusHTML,
		text:    statusText,
	},
	TemplateOrderCancelled: {
		subject: "Order #{{.OrderNumber}} was cancelled",
		html:    statusHTML,
		text:    statusText,
	},
}

var statusHeadlines = map[string]string{
	TemplateOrderShipped:   "Your order is on its way.",
	TemplateOrderDelivered: "Your order has been delivered.",
	TemplateOrderCancelled: "Your order has been cancelled. Any payment will be refunded to the original method.",
}

// Renderer holds parsed templates. HTML bodies are escaped with html/template.
type Renderer struct {
	subjects *texttemplate.Template
	text     *texttemplate.Template
	html     *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		subjects: texttemplate.New("subjects"),
		text:     texttemplate.New("text"),
		html:     htmltemplate.New("html"),
	}

	for name, t := range templates {
		if _, err := r.subjects.New(name).Parse(t.subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", name, err)
		}
		if _, err := r.text.New(name).Parse(t.text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
		if _, err := r.html.New(name).Parse(t.html); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}
	return r, nil
}

type renderData struct {
	*OrderInfo
	Headline string
}

func (r *Renderer) Render(name string, info *OrderInfo) (*Email, error) {
	if _, ok := templates[name]; !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}
	if info == nil {
		return nil, fmt.Errorf("order info is required")
	}
	data := renderData{OrderInfo: info, Headline: statusHeadlines[name]}

	var subject, text, html bytes.Buffer
	if err := r.subjects.ExecuteTemplate(&subject, name, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.text.ExecuteTemplate(&text, name, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.html.ExecuteTemplate(&html, name, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:      info.CustomerEmail,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

const paymentReceivedText = `Hi {{.CustomerName}},

We received your payment for order #{{.OrderNumber}} on {{.Date}}.

{{range .Items}}- {{.Title}}{{if .Variant}} ({{.Variant}}){{end}} x{{.Quantity}}: {{.Total}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Tax: {{.Tax}}
Total: {{.Total}}

Shipping to:
{{range .ShippingAddress}}{{.}}
{{end}}
We'll email you again when your order ships.

{{.StoreName}}
{{.StoreURL}}
`

const paymentReceivedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Payment received</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #2563eb; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
    table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    td, th { padding: 8px; border-bottom: 1px solid #e5e7eb; text-align: left; }
    .total { font-weight: bold; text-align: right; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Payment received</h1>
    <p>Thank you, {{.CustomerName}}.</p>
  </div>
  <p><strong>Order:</strong> #{{.OrderNumber}}<br><strong>Date:</strong> {{.Date}}</p>
  <table>
    <thead><tr><th>Item</th><th>Qty</th><th>Price</th></tr></thead>
    <tbody>
      {{range .Items}}<tr><td>{{.Title}}{{if .Variant}}<br><small>{{.Variant}}</small>{{end}}</td><td>{{.Quantity}}</td><td>{{.Total}}</td></tr>
      {{end}}
    </tbody>
  </table>
  <p class="total">Subtotal: {{.Subtotal}}<br>Shipping: {{.Shipping}}<br>Tax: {{.Tax}}<br>Total: {{.Total}}</p>
  <h3>Shipping to</h3>
  <p>{{range .ShippingAddress}}{{.}}<br>{{end}}</p>
  <p><a href="{{.StoreURL}}">{{.StoreName}}</a></p>
</body>
</html>
`

const statusText = `Hi {{.CustomerName}},

{{.Headline}}

Order #{{.OrderNumber}}, {{.Date}}
Total: {{.Total}}

{{.StoreName}}
{{.StoreURL}}
`

const statusHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Order #{{.OrderNumber}}</title>
</head>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <p>Hi {{.CustomerName}},</p>
  <p>{{.Headline}}</p>
  <p><strong>Order:</strong> #{{.OrderNumber}}<br><strong>Date:</strong> {{.Date}}<br><strong>Total:</strong> {{.Total}}</p>
  <p><a href="{{.StoreURL}}">{{.StoreName}}</a></p>
</body>
</html>
`
