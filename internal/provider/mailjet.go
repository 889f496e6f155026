package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// mailjetStyle targets the Mailjet Send API v3.1.
type mailjetStyle struct{}

type mailjetContact struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mailjetMessage struct {
	From     mailjetContact   `json:"From"`
	To       []mailjetContact `json:"To"`
	Subject  string           `json:"Subject"`
	HTMLPart string           `json:"HTMLPart"`
	CustomID string           `json:"CustomID,omitempty"`
}

type mailjetPayload struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetResponse struct {
	Messages []struct {
		Status string `json:"Status"`
		To     []struct {
			Email     string      `json:"Email"`
			MessageID json.Number `json:"MessageID"`
		} `json:"To"`
		Errors []struct {
			ErrorMessage string `json:"ErrorMessage"`
		} `json:"Errors"`
	} `json:"Messages"`
}

func (mailjetStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	m := mailjetMessage{
		From:     mailjetContact{Email: msg.From, Name: msg.FromName},
		To:       []mailjetContact{{Email: msg.To, Name: msg.ToName}},
		Subject:  msg.Subject,
		HTMLPart: msg.HTMLBody,
	}
	if len(msg.Tags) > 0 {
		m.CustomID = strings.Join(msg.Tags, ",")
	}
	body, err := json.Marshal(mailjetPayload{Messages: []mailjetMessage{m}})
	if err != nil {
		return nil, err
	}
	return &HTTPRequest{
		Method: "POST",
		URL:    b.Endpoint,
		Headers: jsonHeaders(map[string]string{
			"Authorization": "Basic " + basicAuth(b.Get("api_key"), b.Get("api_secret")),
		}),
		Body: body,
	}, nil
}

func (mailjetStyle) accepted(resp *HTTPResponse) (string, error) {
	var out mailjetResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil || len(out.Messages) == 0 {
		return "", nil
	}
	first := out.Messages[0]
	if first.Status != "" && first.Status != "success" {
		if len(first.Errors) > 0 {
			return "", fmt.Errorf("status %s: %s", first.Status, first.Errors[0].ErrorMessage)
		}
		return "", fmt.Errorf("status %s", first.Status)
	}
	if len(first.To) > 0 {
		return first.To[0].MessageID.String(), nil
	}
	return "", nil
}
