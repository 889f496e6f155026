// Package mimeparse reduces an RFC 5322 message to what the relay can send:
// a decoded subject, one HTML body, and a list of the parts it had to drop.
package mimeparse

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// maxDepth bounds multipart nesting.
const maxDepth = 8

// ErrTooDeep is returned for multipart trees nested beyond maxDepth.
var ErrTooDeep = errors.New("mimeparse: multipart nesting too deep")

// Message is a parsed submission.
type Message struct {
	Subject string
	Headers mail.Header
	Text    string
	HTML    string
	// Dropped lists attachments and other parts that are not relayed.
	Dropped []Part
}

// Part describes a dropped MIME part.
type Part struct {
	Filename    string
	ContentType string
	Size        int
}

// Body returns the HTML part, or the text part escaped inside <pre>, or ""
// when the message carries no readable body.
func (m *Message) Body() string {
	if strings.TrimSpace(m.HTML) != "" {
		return m.HTML
	}
	if strings.TrimSpace(m.Text) == "" {
		return ""
	}
	return "<pre>" + html.EscapeString(m.Text) + "</pre>"
}

// Parse reads raw headers and body. The first text/plain and text/html parts
// win; everything else lands in Dropped.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mimeparse: read message: %w", err)
	}

	m := &Message{
		Headers: msg.Header,
		Subject: decodeHeader(msg.Header.Get("Subject")),
	}

	// A missing Content-Type means text/plain.
	ct := msg.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	if err := m.walk(msg.Body, ct, msg.Header.Get("Content-Transfer-Encoding"), "", 0); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) walk(r io.Reader, contentType, encoding, disposition string, depth int) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("mimeparse: parse Content-Type: %w", err)
		}
		mediaType = "application/octet-stream"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxDepth {
			return ErrTooDeep
		}
		boundary := params["boundary"]
		if boundary == "" {
			if depth == 0 {
				return fmt.Errorf("mimeparse: multipart message missing boundary")
			}
			return nil
		}
		mr := multipart.NewReader(r, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("mimeparse: next part: %w", err)
			}
			pct := part.Header.Get("Content-Type")
			if pct == "" {
				pct = "text/plain"
			}
			if err := m.walk(part, pct, part.Header.Get("Content-Transfer-Encoding"),
				part.Header.Get("Content-Disposition"), depth+1); err != nil {
				return err
			}
		}
	}

	body, err := decodeBody(r, encoding)
	if err != nil {
		return fmt.Errorf("mimeparse: read body: %w", err)
	}

	attachment := strings.HasPrefix(strings.ToLower(disposition), "attachment")
	switch {
	case mediaType == "text/plain" && !attachment && m.Text == "":
		m.Text = string(body)
	case mediaType == "text/html" && !attachment && m.HTML == "":
		m.HTML = string(body)
	default:
		m.Dropped = append(m.Dropped, Part{
			Filename:    filename(disposition, params),
			ContentType: mediaType,
			Size:        len(body),
		})
	}
	return nil
}

func filename(disposition string, params map[string]string) string {
	if disposition != "" {
		if _, dp, err := mime.ParseMediaType(disposition); err == nil && dp["filename"] != "" {
			return dp["filename"]
		}
	}
	return params["name"]
}

// decodeHeader decodes RFC 2047 encoded words, returning s unchanged when it
// cannot be decoded.
func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
