package mailbox

import (
	"bytes"
	"encoding/hex"
	"io"
	"mime"
	netmail "net/mail"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"lukechampine.com/blake3"

	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/helpers"
)

// previewLength bounds the plain-text snippet derived from a message body.
const previewLength = 160

var headerDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// decodeHeader renders an RFC 2047 header value for display. A failed
// decode falls back to the raw value sanitized to valid UTF-8; fallback is
// returned for absent values.
func decodeHeader(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		if s := helpers.SanitizeUTF8(raw); s != "" {
			return s
		}
		return consts.HeaderDecodeError
	}
	return helpers.SanitizeUTF8(decoded)
}

// splitFrom breaks a decoded From value into display name and address. A
// bare address derives its name from the local part; a value without an
// address keeps the unknown-name marker.
func splitFrom(from string) (name, address string) {
	name = consts.UnknownNameFallback
	if lt := strings.Index(from, "<"); lt >= 0 && strings.Contains(from, ">") {
		name = strings.Trim(strings.TrimSpace(from[:lt]), `"`)
		rest := from[lt+1:]
		if gt := strings.Index(rest, ">"); gt >= 0 {
			address = strings.TrimSpace(rest[:gt])
		} else {
			address = strings.TrimSpace(rest)
		}
		return name, address
	}
	address = strings.TrimSpace(from)
	if local, _, ok := strings.Cut(address, "@"); ok {
		name = local
	}
	return name, address
}

// normalizeDate renders an RFC 5322 date header for display. Unparsable
// values keep a bounded prefix of the raw header instead of failing the
// message.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return consts.NoDateFallback
	}
	t, err := netmail.ParseDate(raw)
	if err != nil {
		if len(raw) > consts.RawDateFallbackLen {
			return raw[:consts.RawDateFallbackLen]
		}
		return raw
	}
	return t.Format(consts.DateDisplayFormat)
}

// parseEnvelope builds a listing entry from a header-only fetch response.
func parseEnvelope(uid imap.UID, header []byte) (*Envelope, error) {
	// Servers terminate the header block with an empty line; tolerate a
	// missing one.
	if !bytes.HasSuffix(header, []byte("\r\n\r\n")) {
		header = append(append([]byte{}, header...), '\r', '\n', '\r', '\n')
	}

	id := strconv.FormatUint(uint64(uid), 10)
	entity, err := message.Read(bytes.NewReader(header))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, &ParseError{ID: id, Err: err}
	}

	subject := decodeHeader(entity.Header.Get("Subject"), consts.NoSubjectFallback)
	name, address := splitFrom(decodeHeader(entity.Header.Get("From"), consts.UnknownSenderFallback))
	sender := senderOf(name, address)

	return &Envelope{
		ID:               id,
		Subject:          subject,
		ReceivedDateTime: normalizeDate(entity.Header.Get("Date")),
		Sender:           sender,
		From:             sender,
		Body:             Body{Content: "", ContentType: "text"},
		BodyPreview:      "",
	}, nil
}

// parseDetail builds a full message from raw RFC 822 bytes. Body selection
// prefers HTML over plain text and skips attachments; decode problems
// degrade to placeholder content rather than failing the fetch.
func parseDetail(id string, raw []byte) (*Detail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, &ParseError{ID: id, Err: err}
	}
	if mr == nil {
		return nil, &ParseError{ID: id, Err: err}
	}
	defer mr.Close()

	subject := decodeHeader(mr.Header.Get("Subject"), consts.NoSubjectFallback)
	fromName, fromAddr := splitFrom(decodeHeader(mr.Header.Get("From"), consts.UnknownSenderFallback))
	toName, toAddr := splitFrom(decodeHeader(mr.Header.Get("To"), consts.UnknownRecipFallback))
	received := normalizeDate(mr.Header.Get("Date"))

	mediaType, _, _ := mr.Header.ContentType()
	multipart := strings.HasPrefix(mediaType, "multipart/")

	var html, text, single string
	var readFailed bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			// Truncated or malformed remainder: render what was collected.
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		b, err := io.ReadAll(part.Body)
		if err != nil {
			if !multipart {
				readFailed = true
			}
			continue
		}
		content := helpers.SanitizeUTF8(string(b))

		if !multipart {
			if single == "" {
				single = content
			}
			continue
		}

		partType, _, _ := inline.ContentType()
		switch {
		case partType == "text/html" && html == "":
			html = content
		case partType == "text/plain" && text == "":
			text = content
		}
	}

	content, contentType := "", "text"
	switch {
	case multipart && html != "":
		content, contentType = html, "html"
	case multipart && text != "":
		content = text
	case multipart:
		content = consts.NoReadableContent
	case readFailed && single == "":
		content = consts.BodyDecodeError
	default:
		content = single
		lower := strings.ToLower(single)
		if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") {
			contentType = "html"
		}
	}
	if content == "" {
		content = consts.NoReadableText
	}

	sum := blake3.Sum256(raw)

	return &Detail{
		ID:               id,
		Subject:          subject,
		Sender:           senderOf(fromName, fromAddr),
		ToRecipients:     []Sender{senderOf(toName, toAddr)},
		ReceivedDateTime: received,
		Body:             Body{Content: content, ContentType: contentType},
		BodyPreview:      helpers.PreviewText(content, contentType, previewLength),
		ContentHash:      hex.EncodeToString(sum[:]),
	}, nil
}
