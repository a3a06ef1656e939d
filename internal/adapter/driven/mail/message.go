package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// base64LineLength is the RFC 2045 limit for encoded lines.
const base64LineLength = 76

// buildMessage renders msg as an RFC 5322 message. The body is a
// multipart/alternative of the markdown text and its HTML rendering; when
// attachments are present it is nested in a multipart/mixed.
func buildMessage(from string, msg driven.Message, date time.Time) ([]byte, error) {
	altType, altBody, err := buildAlternative(msg.Body)
	if err != nil {
		return nil, err
	}

	contentType, body := altType, altBody
	if len(msg.Attachments) > 0 {
		contentType, body, err = buildMixed(altType, altBody, msg.Attachments)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", from)
	writeHeader(&buf, "To", msg.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from)))
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", contentType)
	buf.WriteString("\r\n")
	buf.Write(body)

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	// Header injection guard: values never span lines.
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func buildAlternative(markdown string) (string, []byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := writeQuotedPrintable(mw, "text/plain; charset=utf-8", markdown); err != nil {
		return "", nil, err
	}
	if err := writeQuotedPrintable(mw, "text/html; charset=utf-8", RenderHTML(markdown)); err != nil {
		return "", nil, err
	}
	if err := mw.Close(); err != nil {
		return "", nil, fmt.Errorf("close alternative part: %w", err)
	}

	return "multipart/alternative; boundary=" + mw.Boundary(), buf.Bytes(), nil
}

func buildMixed(altType string, altBody []byte, attachments []driven.Attachment) (string, []byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {altType}})
	if err != nil {
		return "", nil, fmt.Errorf("create body part: %w", err)
	}
	if _, err := part.Write(altBody); err != nil {
		return "", nil, fmt.Errorf("write body part: %w", err)
	}

	for _, att := range attachments {
		if err := writeAttachment(mw, att); err != nil {
			return "", nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return "", nil, fmt.Errorf("close mixed part: %w", err)
	}
	return "multipart/mixed; boundary=" + mw.Boundary(), buf.Bytes(), nil
}

func writeQuotedPrintable(mw *multipart.Writer, contentType, text string) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(text)); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return qp.Close()
}

func writeAttachment(mw *multipart.Writer, att driven.Attachment) error {
	mediaType, params, err := mime.ParseMediaType(att.ContentType)
	if err != nil {
		mediaType, params = "application/octet-stream", map[string]string{}
	}
	params["name"] = att.Filename

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(mediaType, params)},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("create attachment %q: %w", att.Filename, err)
	}

	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:n]); err != nil {
			return fmt.Errorf("write attachment %q: %w", att.Filename, err)
		}
		encoded = encoded[n:]
	}
	return nil
}

// domainOf returns the domain of an address such as "Panel <no-reply@example.com>".
func domainOf(addr string) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), ">")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
