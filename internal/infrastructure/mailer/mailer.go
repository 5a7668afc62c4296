package mailer

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"ad-board/internal/domain"
)

// Notifier sends best-effort emails. Failures are the caller's to log;
// no retries are performed here.
type Notifier interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
}

func NewSMTPMailer(host string, port int, user, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer:  gomail.NewDialer(host, port, user, password),
		from:    from,
		timeout: 15 * time.Second,
	}
}

// Send delivers one message. gomail exposes no dial timeout, so the send
// runs on its own goroutine and is abandoned once the deadline passes.
// The abandoned goroutine and its half-open SMTP connection both leak
// until the remote or the OS closes the socket. Accepted: sends are rare
// and a hung server must not stall the sweeper's next cycle.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, text, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending email to %s: %w", to, ctx.Err())
	}
}

// ExpiryReminder composes the reminder sent to a supplier whose ad is
// about to expire. The subject identifies the ad by title.
func ExpiryReminder(ad *domain.Ad) (subject, text, html string) {
	endDate := ad.EndDate
	if t, err := domain.ParseDate(ad.EndDate); err == nil {
		endDate = t.Format("January 2, 2006")
	}

	subject = fmt.Sprintf("Your ad %q is about to expire", ad.Title)

	text = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your advertisement %q in category %q expires on %s.\n"+
			"After that date it will be removed automatically. "+
			"Please renew it if you want to keep it online.\n",
		ad.SupplierName, ad.Title, ad.Category, endDate)

	html = fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>Your advertisement <strong>%s</strong> in category <strong>%s</strong> expires on <strong>%s</strong>.</p>"+
			"<p>After that date it will be removed automatically. Please renew it if you want to keep it online.</p>",
		ad.SupplierName, ad.Title, ad.Category, endDate)

	return subject, text, html
}

// ContactMessage composes the support email produced by the public
// contact form.
func ContactMessage(name, email, message string) (subject, text, html string) {
	subject = "New Contact Form Submission"

	text = fmt.Sprintf("Name: %s\nEmail: %s\nMessage:\n%s\n", name, email, message)

	html = fmt.Sprintf(
		"<p><strong>Name:</strong> %s</p>"+
			"<p><strong>Email:</strong> %s</p>"+
			"<p><strong>Message:</strong></p><p>%s</p>",
		name, email, message)

	return subject, text, html
}
