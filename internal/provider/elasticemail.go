package provider

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// elasticEmailStyle targets the Elastic Email v2 send endpoint. The v2 API
// answers 200 even for refused messages, so the body is checked as well.
type elasticEmailStyle struct{}

type elasticEmailResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		TransactionID string `json:"transactionid"`
		MessageID     string `json:"messageid"`
	} `json:"data"`
}

func (elasticEmailStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	form := url.Values{}
	form.Set("apikey", b.Get("api_key"))
	form.Set("from", msg.From)
	form.Set("fromName", msg.FromName)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("bodyHtml", msg.HTMLBody)
	form.Set("isTransactional", "true")
	if len(msg.Tags) > 0 {
		form.Set("channel", strings.Join(msg.Tags, ","))
	}

	return &HTTPRequest{
		Method: "POST",
		URL:    b.Endpoint,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	}, nil
}

func (elasticEmailStyle) accepted(resp *HTTPResponse) (string, error) {
	var out elasticEmailResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", nil
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "request not accepted"
		}
		return "", errors.New(out.Error)
	}
	if out.Data.MessageID != "" {
		return out.Data.MessageID, nil
	}
	return out.Data.TransactionID, nil
}
