package provider

import "encoding/json"

// sparkpostStyle targets the SparkPost transmissions API.
type sparkpostStyle struct{}

type sparkpostAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sparkpostPayload struct {
	Recipients []struct {
		Address sparkpostAddress `json:"address"`
	} `json:"recipients"`
	Content struct {
		From    sparkpostAddress `json:"from"`
		Subject string           `json:"subject"`
		HTML    string           `json:"html"`
	} `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sparkpostResponse struct {
	Results struct {
		ID string `json:"id"`
	} `json:"results"`
}

func (sparkpostStyle) build(msg *Message, b Bundle) (*HTTPRequest, error) {
	var p sparkpostPayload
	p.Recipients = make([]struct {
		Address sparkpostAddress `json:"address"`
	}, 1)
	p.Recipients[0].Address = sparkpostAddress{Email: msg.To, Name: msg.ToName}
	p.Content.From = sparkpostAddress{Email: msg.From, Name: msg.FromName}
	p.Content.Subject = msg.Subject
	p.Content.HTML = msg.HTMLBody
	if len(msg.Tags) > 0 {
		p.Metadata = map[string]string{"tag": msg.Tags[0]}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &HTTPRequest{
		Method: "POST",
		URL:    b.Endpoint,
		// SparkPost expects the bare API key, no scheme.
		Headers: jsonHeaders(map[string]string{"Authorization": b.Get("api_key")}),
		Body:    body,
	}, nil
}

func (sparkpostStyle) accepted(resp *HTTPResponse) (string, error) {
	var out sparkpostResponse
	_ = json.Unmarshal(resp.Body, &out)
	return out.Results.ID, nil
}
