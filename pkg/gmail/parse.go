package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// maxTextBytes bounds how much of each text part is kept.
const maxTextBytes = 64 * 1024

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	stylePattern = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
)

// Message is a fetched mail reduced to what the expense extraction needs.
type Message struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Text    string
	Snippet string
}

// ClassificationText is the text handed to the expense extractor.
func (m *Message) ClassificationText() string {
	return fmt.Sprintf("Subject: %s\nFrom: %s\nDate: %s\n\n%s", m.Subject, m.From, m.Date.Format(time.RFC3339), m.Text)
}

// decodeRaw decodes the base64url payload Gmail returns for format=raw.
func decodeRaw(raw string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
}

// ParseMessage reads an RFC 822 message. Parts in unknown charsets are kept
// undecoded rather than failing the whole mail.
func ParseMessage(id string, raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}
	defer mr.Close()

	msg := &Message{ID: id}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = formatAddress(addrs[0])
	}

	var plain, htmlText []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read part of %s: %w", id, err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(io.LimitReader(p.Body, maxTextBytes))
		if err != nil && !message.IsUnknownCharset(err) {
			continue
		}

		switch contentType {
		case "text/plain":
			plain = append(plain, string(body))
		case "text/html":
			htmlText = append(htmlText, stripHTML(string(body)))
		}
	}

	text := strings.Join(plain, "\n")
	if strings.TrimSpace(text) == "" {
		text = strings.Join(htmlText, "\n")
	}
	msg.Text = collapseSpace(text)
	msg.Snippet = snippet(msg.Text, 200)
	return msg, nil
}

func formatAddress(addr *mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
}

func stripHTML(s string) string {
	s = stylePattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
