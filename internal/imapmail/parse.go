package imapmail

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/matta/mailsnip/internal/message"
	"github.com/pkg/errors"

	_ "github.com/emersion/go-message/charset"
)

// Longest snippet returned, in runes.
const snippetMax = 200

// parse splits a raw RFC 5322 message into its decoded headers, in
// order, and a snippet taken from its first text/plain part.
func parse(raw []byte) ([]message.HeaderField, string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return nil, "", errors.Wrap(err, "reading message header")
	}
	defer mr.Close()
	// An unknown charset still leaves usable headers.
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, "", errors.Wrap(err, "reading message header")
	}

	var headers []message.HeaderField
	fields := mr.Header.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		headers = append(headers, message.HeaderField{Name: headerName(fields.Key()), Value: v})
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Headers are enough; a broken body only costs the snippet.
			return headers, "", nil
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}
		text, err := io.ReadAll(io.LimitReader(p.Body, 16*snippetMax))
		if err != nil {
			return headers, "", nil
		}
		return headers, snippet(string(text)), nil
	}
	return headers, "", nil
}

// Header keys come back in canonical MIME form.  These are spelled
// differently by convention.
var conventionalNames = map[string]string{
	"Message-Id":   "Message-ID",
	"Mime-Version": "MIME-Version",
}

func headerName(k string) string {
	if n, ok := conventionalNames[k]; ok {
		return n
	}
	return k
}

// snippet collapses runs of white space and truncates to snippetMax
// runes.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= snippetMax {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:snippetMax]))
}
