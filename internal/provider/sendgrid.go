package provider

import (
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendgridStyle targets the SendGrid v3 Mail Send API. The body is built with
// the official helpers so the schema tracks the SDK.
type sendgridStyle struct{}

func (sendgridStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	return &HTTPRequest{
		Method: "POST",
		URL:    b.Endpoint,
		Headers: jsonHeaders(map[string]string{
			"Authorization": "Bearer " + b.Get("api_key"),
		}),
		Body: sendgridBody(msg),
	}, nil
}

func sendgridBody(msg *Message) []byte {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.From))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	if len(msg.Tags) > 0 {
		m.AddCategories(msg.Tags...)
	}
	return mail.GetRequestBody(m)
}

func (sendgridStyle) accepted(resp *HTTPResponse) (string, error) {
	return resp.Header("X-Message-Id"), nil
}
