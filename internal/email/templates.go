package email

import (
	"fmt"
	"strings"

	"github.com/artmarket/marketplace-api/internal/model"
)

// OrderConfirmationBody renders the confirmation mail sent after checkout.
func OrderConfirmationBody(order *model.Order) (subject, body string) {
	subject = fmt.Sprintf("Order Confirmation - #%s", order.ID)

	var items strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&items,
			`<div class="order-item">Listing %s<br>Quantity: %d<br>Line total: $%s</div>`,
			item.ListingID, item.Quantity, item.Price.StringFixed(2),
		)
	}

	body = fmt.Sprintf(`<html><body>
<h1>ArtMarket</h1>
<h2>Order Confirmation</h2>
<p>Thank you for your order! Here are your order details:</p>
<h3>Order #%s</h3>
<p><strong>Status:</strong> %s</p>
%s
<p class="total"><strong>Total Amount: $%s</strong></p>
<p>We'll notify you when your order ships.</p>
</body></html>`,
		order.ID, order.Status, items.String(), order.TotalAmount.StringFixed(2))
	return subject, body
}

// OrderShippedBody renders the shipped notification mail.
func OrderShippedBody(order *model.Order, trackingNumber string) (subject, body string) {
	subject = fmt.Sprintf("Your Order Has Shipped - #%s", order.ID)

	tracking := ""
	if trackingNumber != "" {
		tracking = fmt.Sprintf("<p><strong>Tracking Number:</strong> %s</p>", trackingNumber)
	}

	body = fmt.Sprintf(`<html><body>
<h1>ArtMarket</h1>
<h2>Order Shipped!</h2>
<p>Great news! Your order has been shipped.</p>
<p><strong>Order #:</strong> %s</p>
%s
<p>Please allow 5-7 business days for delivery.</p>
</body></html>`, order.ID, tracking)
	return subject, body
}
