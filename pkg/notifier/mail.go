package notifier

import (
	"fmt"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"payrequest_back/models"
)

// MailConfig selects the delivery provider: "smtp" (gomail) or
// "mailjet". Credentials come from the environment.
type MailConfig struct {
	Provider string
	From     string
	To       string

	SMTPHost     string
	SMTPPort     int
	SMTPPassword string

	MailjetAPIKey    string
	MailjetSecretKey string
}

type Mailer struct {
	cfg MailConfig
}

func NewMailer(cfg MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendPaidAsync emails the operator about a settled request. Best
// effort on a separate goroutine; failures are logged only.
func (m *Mailer) SendPaidAsync(req models.PaymentRequest) {
	go func() {
		if err := m.sendPaid(req); err != nil {
			logrus.WithError(err).WithField("request", req.ID).Warn("paid notification mail failed")
		}
	}()
}

func (m *Mailer) sendPaid(req models.PaymentRequest) error {
	subject := fmt.Sprintf("Payment request %s settled", req.ID)
	txHash := ""
	if req.TxHash != nil {
		txHash = *req.TxHash
	}
	body := fmt.Sprintf(`<html><body>
<h2>Payment request settled</h2>
<table>
  <tr><td>Request</td><td>%s</td></tr>
  <tr><td>Amount</td><td>%s %s</td></tr>
  <tr><td>Network</td><td>%s</td></tr>
  <tr><td>Receiver</td><td>%s</td></tr>
  <tr><td>Tx hash</td><td>%s</td></tr>
</table>
</body></html>`, req.ID, req.Amount, req.Token, req.Network, req.Receiver, txHash)

	if m.cfg.Provider == "mailjet" {
		return m.sendMailjet(subject, body)
	}
	return m.sendSMTP(subject, body)
}

func (m *Mailer) sendSMTP(subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	dialer := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.From, m.cfg.SMTPPassword)
	return dialer.DialAndSend(msg)
}

func (m *Mailer) sendMailjet(subject, body string) error {
	client := mailjet.NewMailjetClient(m.cfg.MailjetAPIKey, m.cfg.MailjetSecretKey)
	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{
		{
			From:     &mailjet.RecipientV31{Email: m.cfg.From},
			To:       &mailjet.RecipientsV31{{Email: m.cfg.To}},
			Subject:  subject,
			HTMLPart: body,
		},
	}}
	_, err := client.SendMailV31(messages)
	return err
}
