package events

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"equipment-booking-backend/internal/domain"
	"equipment-booking-backend/internal/logger"
	"equipment-booking-backend/internal/repository"
)

type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)

	logger.ExternalServiceCall("sendgrid", "send", "to", msg.ToEmail, "subject", msg.Subject)
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
	} else if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "to", msg.ToEmail)
	return err
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetAddressHeader("To", msg.ToEmail, msg.ToName)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.PlainText)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}

	logger.ExternalServiceCall("smtp", "send", "to", msg.ToEmail, "subject", msg.Subject)
	err := m.dialer.DialAndSend(gm)
	if err != nil {
		err = fmt.Errorf("failed to send email via gomail: %w", err)
	}
	logger.ExternalServiceResult("smtp", "send", err, "to", msg.ToEmail)
	return err
}

// LogMailer only logs what would have been sent.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	logger.InfoContext(ctx, "Email (not sent)", "to", msg.ToEmail, "subject", msg.Subject)
	return nil
}

// Notifier mails the booking's customer about each event.
type Notifier struct {
	customers repository.CustomerRepository
	equipment repository.EquipmentRepository
	mailer    Mailer
}

func NewNotifier(customers repository.CustomerRepository, equipment repository.EquipmentRepository, mailer Mailer) *Notifier {
	return &Notifier{customers: customers, equipment: equipment, mailer: mailer}
}

func (n *Notifier) Publish(ctx context.Context, event domain.BookingEvent) error {
	return n.Handle(ctx, event)
}

func (n *Notifier) Handle(ctx context.Context, event domain.BookingEvent) error {
	b := event.Booking
	customer, err := n.customers.GetByID(ctx, b.CustomerID)
	if err != nil {
		return fmt.Errorf("customer %d: %w", b.CustomerID, err)
	}
	if customer.Email == "" {
		logger.WithService("notifier").Debug("Customer has no email, skipping notification", "customer_id", customer.ID, "booking_id", b.ID)
		return nil
	}
	equipment, err := n.equipment.GetByID(ctx, b.EquipmentID)
	if err != nil {
		return fmt.Errorf("equipment %d: %w", b.EquipmentID, err)
	}

	msg := composeMessage(event, customer, equipment)
	return n.mailer.Send(ctx, msg)
}

const mailDateLayout = "Mon, 02 Jan 2006 15:04 MST"

func composeMessage(event domain.BookingEvent, c *domain.Customer, e *domain.Equipment) Message {
	b := event.Booking

	var subject, lead string
	switch event.Type {
	case domain.BookingCreated:
		subject = fmt.Sprintf("Booking #%d received: %s", b.ID, e.Name)
		lead = fmt.Sprintf("Your booking of %s has been received.", e.Name)
	case domain.BookingUpdated:
		subject = fmt.Sprintf("Booking #%d updated: %s", b.ID, e.Name)
		lead = fmt.Sprintf("Your booking of %s has been updated.", e.Name)
	case domain.BookingCancelled:
		subject = fmt.Sprintf("Booking #%d cancelled: %s", b.ID, e.Name)
		lead = fmt.Sprintf("Your booking of %s has been cancelled.", e.Name)
	default:
		subject = fmt.Sprintf("Booking #%d: %s", b.ID, e.Name)
		lead = fmt.Sprintf("There is news about your booking of %s.", e.Name)
	}

	lines := []string{
		fmt.Sprintf("Hello %s,", c.Name),
		"",
		lead,
		"",
		fmt.Sprintf("From:   %s", b.StartDate.Format(mailDateLayout)),
		fmt.Sprintf("Until:  %s", b.EndDate.Format(mailDateLayout)),
		fmt.Sprintf("Status: %s", b.Status),
	}
	if b.IsRecurring && b.RecurrenceEndDate != nil {
		lines = append(lines, fmt.Sprintf("Repeats %s until %s", b.RecurrencePattern, b.RecurrenceEndDate.Format("2006-01-02")))
	}
	if event.Type == domain.BookingCancelled && b.CancellationReason != nil {
		lines = append(lines, fmt.Sprintf("Reason: %s", *b.CancellationReason))
	}
	lines = append(lines, "", "Best regards,", "The Equipment Rental Team")
	text := strings.Join(lines, "\n")

	body := "<html><body><p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p></body></html>"

	return Message{
		ToEmail:   c.Email,
		ToName:    c.Name,
		Subject:   subject,
		PlainText: text,
		HTML:      body,
	}
}
