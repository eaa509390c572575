package delivery

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// HTMLBody renders plain text as the HTML alternative: escaped, newlines
// turned into <br>, wrapped in a styled div.
func HTMLBody(body string) string {
	escaped := html.EscapeString(strings.ReplaceAll(body, "\r\n", "\n"))
	return `<div style="font-family: Arial, sans-serif; line-height: 1.6;">` +
		strings.ReplaceAll(escaped, "\n", "<br>") +
		`</div>`
}

type envelope struct {
	From    *mail.Address
	To      *mail.Address
	Subject string
	Text    string
	Date    time.Time
}

// compose builds a multipart/alternative message and returns it with its
// generated Message-ID.
func compose(env envelope) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(env.Date)
	h.SetAddressList("From", []*mail.Address{env.From})
	h.SetAddressList("To", []*mail.Address{env.To})
	h.SetSubject(env.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("read message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("create message: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("create inline: %w", err)
	}
	if err := writePart(iw, "text/plain", env.Text); err != nil {
		return nil, "", err
	}
	if err := writePart(iw, "text/html", HTMLBody(env.Text)); err != nil {
		return nil, "", err
	}
	if err := iw.Close(); err != nil {
		return nil, "", fmt.Errorf("close inline: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), "<" + id + ">", nil
}

func writePart(iw *mail.InlineWriter, contentType, content string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s part: %w", contentType, err)
	}
	return nil
}
