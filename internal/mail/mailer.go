// Package mail delivers the order-confirmation receipt. Delivery is
// fire-and-forget from the caller's perspective: a fulfilled order must
// never be failed because its email could not be sent.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

type OrderItem struct {
	ProductName string
	ImageURL    string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineTotalDisplay formats the line total for the receipt template.
func (i OrderItem) LineTotalDisplay() string { return i.LineTotal().StringFixed(2) }

type OrderSummary struct {
	To          string
	OrderID     int64
	TotalAmount decimal.Decimal
	Items       []OrderItem
}

// TotalDisplay formats the captured total for the receipt template.
func (s OrderSummary) TotalDisplay() string { return s.TotalAmount.StringFixed(2) }

type Notifier interface {
	OrderConfirmation(ctx context.Context, s OrderSummary) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
}

type Mailer struct {
	cfg  SMTPConfig
	tmpl *template.Template
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, tmpl: template.Must(template.New("receipt").Parse(receiptHTML))}
}

func (m *Mailer) OrderConfirmation(_ context.Context, s OrderSummary) error {
	var body bytes.Buffer
	if err := m.tmpl.Execute(&body, s); err != nil {
		return fmt.Errorf("mail: render receipt: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.Username, m.cfg.FromName)
	msg.SetHeader("To", s.To)
	msg.SetHeader("Subject", fmt.Sprintf("Your ElectroVision Order is Confirmed (#%d)", s.OrderID))
	msg.SetBody("text/html", body.String())

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", s.To, err)
	}
	return nil
}

// NopNotifier is used in dev setups without SMTP credentials and in tests.
type NopNotifier struct{}

func (NopNotifier) OrderConfirmation(context.Context, OrderSummary) error { return nil }

const receiptHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Order Confirmation</title></head>
<body style="margin:0;padding:0;font-family:sans-serif;background-color:#f4f7f6;">
  <div style="max-width:600px;margin:20px auto;background:#ffffff;border:1px solid #e0e0e0;border-radius:8px;">
    <div style="background:#0d6efd;color:#ffffff;padding:25px;text-align:center;">
      <h1 style="margin:0;font-size:28px;">Thank You For Your Order!</h1>
    </div>
    <div style="padding:25px;color:#333333;line-height:1.6;">
      <p>Hi there,</p>
      <p>Your order has been successfully placed. Here are the details for your reference:</p>
      <p style="font-size:16px;background:#f4f7f6;padding:10px;border-radius:4px;"><strong>Order ID: #{{.OrderID}}</strong></p>
      <h2 style="font-size:20px;color:#0d6efd;border-bottom:2px solid #f0f0f0;padding-bottom:10px;">Order Summary</h2>
      <table style="width:100%;border-collapse:collapse;margin:20px 0;">
        <thead>
          <tr>
            <th style="padding:10px 0;text-align:left;">Product</th>
            <th style="padding:10px 0;text-align:center;">Quantity</th>
            <th style="padding:10px 0;text-align:right;">Subtotal</th>
          </tr>
        </thead>
        <tbody>
          {{range .Items}}
          <tr style="border-bottom:1px solid #eeeeee;">
            <td style="padding:15px 5px;">
              {{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.ProductName}}" style="width:60px;height:60px;margin-right:15px;border-radius:4px;vertical-align:middle;">{{end}}
              <span style="font-weight:bold;color:#333;">{{.ProductName}}</span>
            </td>
            <td style="padding:15px 5px;text-align:center;">{{.Quantity}}</td>
            <td style="padding:15px 5px;text-align:right;">${{.LineTotalDisplay}}</td>
          </tr>
          {{end}}
        </tbody>
      </table>
      <table style="width:100%;border-collapse:collapse;margin-top:20px;">
        <tr>
          <td style="text-align:right;padding:15px 0;font-weight:bold;font-size:20px;border-top:2px solid #e0e0e0;">Total Paid:</td>
          <td style="text-align:right;padding:15px 0;font-weight:bold;font-size:20px;width:120px;">${{.TotalDisplay}}</td>
        </tr>
      </table>
      <p>If you have any questions, feel free to reply directly to this email.</p>
      <p>Best regards,<br>The ElectroVision Team</p>
    </div>
  </div>
</body>
</html>`
