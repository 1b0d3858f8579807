package notify

import "html/template"

var welcomeTpl = template.Must(template.New("welcome").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Welcome {{.UserName}}!</h1>
  <p>Thanks for signing up. You can now place orders and track them from your account.</p>
  <p><a href="{{.ShopURL}}">Start shopping</a></p>
</div>`))

var confirmationTpl = template.Must(template.New("confirmation").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Order confirmed</h1>
  <p>Hello <strong>{{.UserName}}</strong>, thank you for your order.</p>
  <p>Order number: <strong>{{.OrderNumber}}</strong></p>
  <table style="width: 100%; border-collapse: collapse;">
    {{range .Items}}<tr><td>{{.Name}} x {{.Quantity}}</td><td style="text-align: right;">${{.Subtotal.StringFixed 2}}</td></tr>
    {{end}}<tr><td><strong>TOTAL</strong></td><td style="text-align: right;"><strong>${{.TotalAmount}}</strong></td></tr>
  </table>
  <p><a href="{{.ShopURL}}/orders">View my orders</a></p>
</div>`))

var shippedTpl = template.Must(template.New("shipped").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Your order is on its way</h1>
  <p>Hello <strong>{{.UserName}}</strong>, order <strong>{{.OrderNumber}}</strong> has shipped.</p>
  <p><a href="{{.ShopURL}}/orders">Track my orders</a></p>
</div>`))
