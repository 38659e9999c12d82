// Package notification is the gateway for buyer/seller emails around the
// escrow hold. Every send is advisory: callers log failures and keep going,
// a failed email never rolls back a payment-state change.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Gateway interface {
	SendPaymentOnHold(ctx context.Context, buyerEmail string, orderID snowflake.ID, deadline time.Time) error
	SendPaymentReleased(ctx context.Context, sellerEmail string, orderID snowflake.ID, amount int64, currency string, reason string) error
	SendAutoReleaseReminder(ctx context.Context, buyerEmail string, orderID snowflake.ID, daysRemaining int, deadline time.Time) error
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Email email.Provider
}

type service struct {
	log   *zap.Logger
	email email.Provider
}

func NewGateway(p Params) Gateway {
	return &service{
		log:   p.Log.Named("notification"),
		email: p.Email,
	}
}

var (
	onHoldTmpl = template.Must(template.New("payment_on_hold").Parse(
		`<p>Your payment for order {{.OrderID}} is protected and on hold.</p>
<p>Confirm receipt once your item arrives. If you do nothing, the payment is
released to the seller automatically on {{.Deadline}}.</p>`))

	releasedTmpl = template.Must(template.New("payment_released").Parse(
		`<p>The payment for order {{.OrderID}} has been released to you.</p>
<p>Amount: {{.Amount}} {{.Currency}} ({{.Reason}}).</p>`))

	reminderTmpl = template.Must(template.New("auto_release_reminder").Parse(
		`<p>Order {{.OrderID}}: {{.DaysRemaining}} day(s) left to confirm receipt.</p>
<p>If you do nothing, the payment is released to the seller on {{.Deadline}}.</p>`))
)

func (s *service) SendPaymentOnHold(ctx context.Context, buyerEmail string, orderID snowflake.ID, deadline time.Time) error {
	body, err := render(onHoldTmpl, map[string]any{
		"OrderID":  orderID.String(),
		"Deadline": deadline.Format("2 January 2006"),
	})
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{buyerEmail}, "Your payment is on hold", body)
}

func (s *service) SendPaymentReleased(ctx context.Context, sellerEmail string, orderID snowflake.ID, amount int64, currency string, reason string) error {
	body, err := render(releasedTmpl, map[string]any{
		"OrderID":  orderID.String(),
		"Amount":   formatMinorUnits(amount),
		"Currency": currency,
		"Reason":   reason,
	})
	if err != nil {
		return err
	}
	return s.email.Send(ctx, []string{sellerEmail}, "Payment released", body)
}

func (s *service) SendAutoReleaseReminder(ctx context.Context, buyerEmail string, orderID snowflake.ID, daysRemaining int, deadline time.Time) error {
	body, err := render(reminderTmpl, map[string]any{
		"OrderID":       orderID.String(),
		"DaysRemaining": daysRemaining,
		"Deadline":      deadline.Format("2 January 2006"),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Reminder: confirm receipt within %d day(s)", daysRemaining)
	return s.email.Send(ctx, []string{buyerEmail}, subject, body)
}

func render(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

var Module = fx.Module("notification",
	fx.Provide(NewGateway),
)
