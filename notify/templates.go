package notify

import (
	"bytes"
	"html/template"

	"github.com/shopspring/decimal"
)

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"money": func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) },
	"lineTotal": func(price float64, qty int) string {
		return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).StringFixed(2)
	},
}).Parse(`
{{define "order_confirmation"}}
<div style="font-family: Arial; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
  <h2 style="color: #cc5200;">Thank you for your order, {{.CustomerName}}!</h2>
  <p>Your order <strong>#{{.OrderID}}</strong> has been received and is being processed.</p>
  <p><strong>Payment Method:</strong> {{.PaymentMethod}}</p>
  <p><strong>Total Amount:</strong> &#8377;{{money .TotalAmount}}</p>
  <h3 style="margin-top: 20px;">Items Ordered:</h3>
  <ul>{{range .Items}}<li>{{.Title}} &times; {{.Quantity}} &mdash; &#8377;{{lineTotal .Price .Quantity}}</li>{{end}}</ul>
  <hr />
  <p style="color: #888;">We'll notify you once your items are shipped.</p>
  <p>Regards,<br/>Desi-Etsy Team</p>
</div>
{{end}}

{{define "otp"}}
<div style="font-family: Arial; padding: 20px; border: 1px solid #eee; border-radius: 10px; max-width: 500px; margin: auto;">
  <h2 style="color: #cc5200;">Desi-Etsy OTP Verification</h2>
  <p>Hello,</p>
  <p><strong>Your OTP: <span style="color: #cc5200;">{{.Code}}</span></strong></p>
  <p>Valid for {{.Minutes}} minutes. Please do not share it with anyone.</p>
  <p style="color: #888;">- Desi-Etsy Team</p>
</div>
{{end}}

{{define "password_reset"}}
<p>Click below to reset your password:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link expires in {{.Minutes}} minutes.</p>
{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
