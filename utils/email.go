package utils

import (
	"fmt"
	"html"
	"log"
	"strings"
	"sync"

	"storefront-api/models"

	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email is a single transactional message
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// MailTransport delivers one email synchronously
type MailTransport interface {
	Send(msg Email) error
	Name() string
}

type postmarkTransport struct {
	client *postmark.Client
	from   string
}

func (t *postmarkTransport) Name() string { return "postmark" }

func (t *postmarkTransport) Send(msg Email) error {
	_, err := t.client.SendEmail(postmark.Email{
		From:     t.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	})
	return err
}

type sendgridTransport struct {
	client *sendgrid.Client
	from   *mail.Email
}

func (t *sendgridTransport) Name() string { return "sendgrid" }

func (t *sendgridTransport) Send(msg Email) error {
	message := mail.NewSingleEmail(t.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)
	response, err := t.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid responded %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogTransport writes emails to the log instead of delivering them
type LogTransport struct{}

func (LogTransport) Name() string { return "log" }

func (LogTransport) Send(msg Email) error {
	log.Printf("email (not delivered) to=%s subject=%q", msg.To, msg.Subject)
	return nil
}

// NewMailTransport picks the provider named in the config. Without
// credentials for it the log transport is used.
func NewMailTransport(cfg *Config) MailTransport {
	provider := cfg.EmailProvider
	if provider == "" {
		switch {
		case cfg.PostmarkToken != "":
			provider = "postmark"
		case cfg.SendGridKey != "":
			provider = "sendgrid"
		}
	}
	switch provider {
	case "postmark":
		if cfg.PostmarkToken != "" {
			return &postmarkTransport{client: postmark.NewClient(cfg.PostmarkToken, ""), from: cfg.EmailSender}
		}
	case "sendgrid":
		if cfg.SendGridKey != "" {
			return &sendgridTransport{
				client: sendgrid.NewSendClient(cfg.SendGridKey),
				from:   mail.NewEmail(cfg.Company.Name, cfg.EmailSender),
			}
		}
	}
	if provider != "" && provider != "log" {
		log.Printf("EMAIL_PROVIDER %q has no credentials, emails will only be logged", provider)
	}
	return LogTransport{}
}

// EmailService sends transactional email in the background. Sends are
// fire-and-forget: failures are logged and never retried.
type EmailService struct {
	transport MailTransport
	company   CompanyInfo
	wg        sync.WaitGroup
}

// NewEmailService initializes and returns a new EmailService instance
func NewEmailService(transport MailTransport, company CompanyInfo) *EmailService {
	return &EmailService{transport: transport, company: company}
}

// SendEmail delivers msg synchronously
func (es *EmailService) SendEmail(msg Email) error {
	if msg.Text == "" {
		msg.Text = msg.HTML
	}
	if err := es.transport.Send(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendAsync queues msg on a goroutine and returns immediately
func (es *EmailService) SendAsync(msg Email) {
	es.wg.Add(1)
	go func() {
		defer es.wg.Done()
		if err := es.SendEmail(msg); err != nil {
			log.Printf("email to %s failed via %s: %v", msg.To, es.transport.Name(), err)
			return
		}
		log.Printf("email to %s sent via %s", msg.To, es.transport.Name())
	}()
}

// Wait blocks until every queued send has finished
func (es *EmailService) Wait() {
	es.wg.Wait()
}

// SendOTPEmail mails a one-time code
func (es *EmailService) SendOTPEmail(toEmail, code, purpose string, validMinutes int) {
	action := "sign in"
	if purpose == models.OtpPurposeReset {
		action = "reset your password"
	}
	es.SendAsync(Email{
		To:      toEmail,
		Subject: fmt.Sprintf("Your %s verification code", es.company.Name),
		HTML: fmt.Sprintf(
			"<p>Use the code below to %s:</p><h2>%s</h2><p>It expires in %d minutes. If you did not request it, ignore this email.</p>",
			action, code, validMinutes,
		),
		Text: fmt.Sprintf("Your code to %s is %s. It expires in %d minutes.", action, code, validMinutes),
	})
}

// SendOrderConfirmationEmail sends an order summary to the customer
func (es *EmailService) SendOrderConfirmationEmail(toEmail string, order models.Order) {
	var rows strings.Builder
	for _, it := range order.Items {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td><td>%.2f</td></tr>",
			html.EscapeString(it.Name), it.Quantity, models.LineTotal(it.Price, it.Quantity))
	}
	es.SendAsync(Email{
		To:      toEmail,
		Subject: fmt.Sprintf("Order %s: %s", order.InvoiceNumber(), order.OrderStatus),
		HTML: fmt.Sprintf(
			"<strong>Dear Customer,</strong><br><br>Your order (ID: %s) is <strong>%s</strong>.<br><table>%s</table><br>Total Amount: <strong>%.2f</strong><br>Payment Method: <strong>%s</strong><br><br>Thank you for shopping with %s!",
			order.ID.Hex(), order.OrderStatus, rows.String(), order.TotalAmount, order.PaymentMethod, html.EscapeString(es.company.Name),
		),
	})
}

// SendMessage mails free text composed by an admin
func (es *EmailService) SendMessage(toEmail, subject, message string) {
	es.SendAsync(Email{
		To:      toEmail,
		Subject: subject,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(message), "\n", "<br>") + "</p>",
		Text:    message,
	})
}
