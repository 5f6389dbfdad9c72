package mail

import (
	htmltemplate "html/template"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
)

var funcs = map[string]any{
	"money": func(v int64) string { return "₹" + strconv.FormatInt(v, 10) },
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006, 15:04 MST") },
	"lineTotal": func(l domain.LineItem) int64 {
		return l.UnitPrice * int64(l.Quantity)
	},
	"titles": func(items []domain.LineItem) string {
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.Title)
		}
		return strings.Join(out, ", ")
	},
}

const buyerText = `Hi {{.Buyer.Name}}, your order is confirmed.

Order ID: {{.OrderID}}
Date: {{date .PlacedAt}}
Ship to: {{.Buyer.Address}}

{{range .Sellers}}{{range .Items}}- {{.Title}} x{{.Quantity}}  {{money (lineTotal .)}}
{{end}}{{end}}
Total: {{money .TotalAmount}}

Seller contacts:
{{range .Sellers}}- {{.Seller.Name}} <{{.Seller.Email}}>{{if .Seller.Phone}} {{.Seller.Phone}}{{end}}: {{titles .Items}}
{{end}}`

const buyerHTML = `<h2>Hi {{.Buyer.Name}}, your order is confirmed</h2>
<p><strong>Order ID:</strong> {{.OrderID}}<br><strong>Date:</strong> {{date .PlacedAt}}</p>
<table>
<tr><th>Product</th><th>Qty</th><th>Price</th></tr>
{{range .Sellers}}{{range .Items}}<tr><td>{{.Title}}</td><td>{{.Quantity}}</td><td>{{money (lineTotal .)}}</td></tr>
{{end}}{{end}}</table>
<p><strong>Total: {{money .TotalAmount}}</strong></p>
<h3>Seller contact details</h3>
{{range .Sellers}}<p><strong>{{.Seller.Name}}</strong> {{.Seller.Email}}{{if .Seller.Phone}} {{.Seller.Phone}}{{end}}<br>Products: {{titles .Items}}</p>
{{end}}`

const sellerText = `Congratulations {{.Seller.Name}}, you have a new order.

Order ID: {{.OrderID}}
Date: {{date .PlacedAt}}

Buyer: {{.Buyer.Name}} <{{.Buyer.Email}}>{{if .Buyer.Phone}} {{.Buyer.Phone}}{{end}}
Ship to: {{.ShippingAddress}}

{{range .Items}}- {{.Title}} x{{.Quantity}}  {{money (lineTotal .)}}
{{end}}
A platform commission will be deducted from this sale.
`

const sellerHTML = `<h2>Congratulations {{.Seller.Name}}!</h2>
<p>You have received a new order.</p>
<p><strong>Order ID:</strong> {{.OrderID}}<br><strong>Date:</strong> {{date .PlacedAt}}</p>
<h3>Buyer</h3>
<p>{{.Buyer.Name}}<br>{{.Buyer.Email}}{{if .Buyer.Phone}}<br>{{.Buyer.Phone}}{{end}}</p>
<h3>Shipping address</h3>
<p>{{.ShippingAddress}}</p>
<table>
<tr><th>Product</th><th>Qty</th><th>Price</th></tr>
{{range .Items}}<tr><td>{{.Title}}</td><td>{{.Quantity}}</td><td>{{money (lineTotal .)}}</td></tr>
{{end}}</table>
<p><small>A platform commission will be deducted from this sale.</small></p>`

const codeText = `Hi {{.Buyer.Name}},

Your delivery authentication code for order {{.OrderID}} is:

    {{.Code}}

Share it with the seller only after you have received your order.{{if .ExpiresAt}}
The code expires on {{date .ExpiresAt}}.{{end}}
`

const codeHTML = `<h2>Hi {{.Buyer.Name}},</h2>
<p>Your delivery authentication code for order <strong>#{{.OrderID}}</strong>:</p>
<h1 style="font-family: monospace; letter-spacing: 10px;">{{.Code}}</h1>
<p><strong>Important:</strong> do not share this code until you have physically received your order.</p>
{{if .ExpiresAt}}<p>The code expires on {{date .ExpiresAt}}.</p>{{end}}`

type bodyTemplates struct {
	text *template.Template
	html *htmltemplate.Template
}

func mustTemplates(name, text, html string) bodyTemplates {
	return bodyTemplates{
		text: template.Must(template.New(name).Funcs(funcs).Parse(text)),
		html: htmltemplate.Must(htmltemplate.New(name).Funcs(funcs).Parse(html)),
	}
}

var (
	buyerTemplates  = mustTemplates("buyer", buyerText, buyerHTML)
	sellerTemplates = mustTemplates("seller", sellerText, sellerHTML)
	codeTemplates   = mustTemplates("code", codeText, codeHTML)
)
