package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"sysward/internal/version"
)

const smtpSessionTimeout = 10 * time.Second

// Email sends plain-text alerts through an unauthenticated SMTP relay,
// typically a local MTA on port 25.
type Email struct {
	Host      string
	Port      int
	Sender    string
	Recipient string

	// timeout bounds the entire SMTP session, dial included. A relay that
	// accepts the connection and then stalls must not block the caller.
	timeout time.Duration

	// send is swappable for tests; defaults to a dial-and-submit over
	// net/smtp with a bounded session timeout.
	send func(addr, from string, to []string, msg []byte) error
}

// NewEmail builds an SMTP notifier for the given relay and addresses.
func NewEmail(host string, port int, sender, recipient string) *Email {
	e := &Email{Host: host, Port: port, Sender: sender, Recipient: recipient, timeout: smtpSessionTimeout}
	e.send = e.submit
	return e
}

// Send formats and submits one alert message.
func (e *Email) Send(subject, body string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [sysward] %s\r\n\r\n%s\r\n\r\n-- \nsysward %s on %s\r\n",
		e.Sender, e.Recipient, subject, body, version.Version, hostname)

	addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	if err := e.send(addr, e.Sender, []string{e.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("email alert to %s failed: %w", e.Recipient, err)
	}
	return nil
}

// submit speaks SMTP over a connection with an explicit session deadline.
// smtp.SendMail has no timeout of its own and can hang on a dead relay, and a
// dial timeout alone does not cover a relay that connects and goes silent.
func (e *Email) submit(addr, from string, to []string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, e.timeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(e.timeout)); err != nil {
		conn.Close()
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
