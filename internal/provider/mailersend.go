package provider

import "encoding/json"

// mailersendStyle targets the MailerSend email API.
type mailersendStyle struct{}

type mailersendContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailersendPayload struct {
	From    mailersendContact   `json:"from"`
	To      []mailersendContact `json:"to"`
	Subject string              `json:"subject"`
	HTML    string              `json:"html"`
	Tags    []string            `json:"tags,omitempty"`
}

func (mailersendStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	body, err := json.Marshal(mailersendPayload{
		From:    mailersendContact{Email: msg.From, Name: msg.FromName},
		To:      []mailersendContact{{Email: msg.To, Name: msg.ToName}},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Tags:    msg.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &HTTPRequest{
		Method:  "POST",
		URL:     b.Endpoint,
		Headers: jsonHeaders(map[string]string{"Authorization": "Bearer " + b.Get("api_key")}),
		Body:    body,
	}, nil
}

func (mailersendStyle) accepted(resp *HTTPResponse) (string, error) {
	return resp.Header("X-Message-Id"), nil
}
