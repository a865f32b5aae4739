package outbox

import (
	"io"

	gomail "gopkg.in/gomail.v2"
)

// Mailer sends outbox messages over SMTP.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{host: host, port: port, username: username, password: password, from: from}
}

func (ml *Mailer) Send(m Message, attachments []Attachment) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", ml.from)
	msg.SetHeader("To", m.ToAddress)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.BodyHTML)

	for _, a := range attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		msg.Attach(a.Name,
			gomail.SetHeader(map[string][]string{
				"Content-Type":        {ct + `; name="` + a.Name + `"`},
				"Content-Disposition": {`attachment; filename="` + a.Name + `"`},
			}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(a.Data)
				return err
			}),
		)
	}

	return gomail.NewDialer(ml.host, ml.port, ml.username, ml.password).DialAndSend(msg)
}
