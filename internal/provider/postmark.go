package provider

import (
	"encoding/json"
	"errors"
)

// postmarkStyle targets the Postmark single email API.
type postmarkStyle struct{}

type postmarkPayload struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HTMLBody      string `json:"HtmlBody"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (postmarkStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	p := postmarkPayload{
		From:          formatAddress(msg.FromName, msg.From),
		To:            formatAddress(msg.ToName, msg.To),
		Subject:       msg.Subject,
		HTMLBody:      msg.HTMLBody,
		MessageStream: "outbound",
	}
	// Postmark accepts a single tag per message.
	if len(msg.Tags) > 0 {
		p.Tag = msg.Tags[0]
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &HTTPRequest{
		Method:  "POST",
		URL:     b.Endpoint,
		Headers: jsonHeaders(map[string]string{"X-Postmark-Server-Token": b.Get("api_key")}),
		Body:    body,
	}, nil
}

func (postmarkStyle) accepted(resp *HTTPResponse) (string, error) {
	var out postmarkResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", nil
	}
	if out.ErrorCode != 0 {
		return "", errors.New(out.Message)
	}
	return out.MessageID, nil
}
