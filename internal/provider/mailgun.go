package provider

import (
	"encoding/json"
	"net/url"
	"strings"
)

// mailgunStyle targets the Mailgun messages API (form-encoded POST to a
// domain-scoped endpoint).
type mailgunStyle struct{}

type mailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (mailgunStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	form := url.Values{}
	form.Set("from", formatAddress(msg.FromName, msg.From))
	form.Set("to", formatAddress(msg.ToName, msg.To))
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTMLBody)
	for _, tag := range msg.Tags {
		form.Add("o:tag", tag)
	}

	return &HTTPRequest{
		Method: "POST",
		URL:    b.Endpoint,
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth("api", b.Get("api_key")),
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	}, nil
}

func (mailgunStyle) accepted(resp *HTTPResponse) (string, error) {
	var out mailgunResponse
	_ = json.Unmarshal(resp.Body, &out)
	return strings.Trim(out.ID, "<>"), nil
}
