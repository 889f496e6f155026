package provider

import "encoding/json"

// brevoStyle targets the Brevo (Sendinblue) transactional email API.
type brevoStyle struct{}

type brevoPayload struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	Tags        []string       `json:"tags,omitempty"`
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func (brevoStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	body, err := json.Marshal(brevoPayload{
		Sender:      brevoContact{Name: msg.FromName, Email: msg.From},
		To:          []brevoContact{{Name: msg.ToName, Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLBody,
		Tags:        msg.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &HTTPRequest{
		Method:  "POST",
		URL:     b.Endpoint,
		Headers: jsonHeaders(map[string]string{"api-key": b.Get("api_key")}),
		Body:    body,
	}, nil
}

func (brevoStyle) accepted(resp *HTTPResponse) (string, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	_ = json.Unmarshal(resp.Body, &out)
	return out.MessageID, nil
}
