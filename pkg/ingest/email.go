package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"
)

// ParsedEmail is the ingestion-relevant view of one RFC 5322 message.
type ParsedEmail struct {
	Subject     string
	From        string
	MessageID   string
	Date        time.Time
	BodyText    string
	Attachments []File
}

// inlineMimes are part types kept as attachments even without a
// Content-Disposition or filename (voice notes and receipts are often
// sent this way).
var inlineMimes = map[string]bool{
	"application/pdf": true,
	"audio/ogg":       true,
	"audio/mpeg":      true,
	"audio/mp4":       true,
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

func htmlToText(html string) string {
	return strings.TrimSpace(strings.ReplaceAll(htmlTagRe.ReplaceAllString(html, " "), "&nbsp;", " "))
}

type emailPart struct {
	mediaType   string
	disposition string
	filename    string
	contentID   string
	data        []byte
}

// ParseEmail extracts headers, the best body text, and attachments from a
// raw message. Body preference is text/plain, then stripped text/html.
// Inline images referenced from the HTML body (cid:) are dropped.
func ParseEmail(raw []byte) (*ParsedEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	parsed := &ParsedEmail{
		From:      msg.Header.Get("From"),
		MessageID: strings.Trim(msg.Header.Get("Message-Id"), "<>"),
	}

	dec := new(mime.WordDecoder)
	if subject, err := dec.DecodeHeader(msg.Header.Get("Subject")); err == nil {
		parsed.Subject = subject
	} else {
		parsed.Subject = msg.Header.Get("Subject")
	}
	if date, err := msg.Header.Date(); err == nil {
		parsed.Date = date.UTC()
	} else {
		parsed.Date = time.Now().UTC()
	}

	parts, err := collectParts(textproto.MIMEHeader(msg.Header), msg.Body, 0)
	if err != nil {
		return nil, err
	}

	var htmlText string
	for _, part := range parts {
		if part.mediaType == "text/html" {
			htmlText = string(part.data)
			break
		}
	}
	parsed.BodyText = bestBodyText(parts)

	for i, part := range parts {
		if strings.HasPrefix(part.mediaType, "multipart/") {
			continue
		}
		if strings.HasPrefix(part.mediaType, "image/") && part.contentID != "" &&
			strings.Contains(htmlText, "cid:"+part.contentID) {
			continue
		}
		isAttachment := strings.Contains(part.disposition, "attachment") || part.filename != ""
		if !isAttachment && !inlineMimes[part.mediaType] {
			continue
		}

		filename := part.filename
		if filename == "" {
			ext := part.mediaType
			if idx := strings.LastIndex(ext, "/"); idx >= 0 {
				ext = ext[idx+1:]
			}
			filename = fmt.Sprintf("part-%d.%s", i, ext)
		}
		parsed.Attachments = append(parsed.Attachments, File{
			Filename: filename,
			Mime:     part.mediaType,
			Data:     part.data,
		})
	}

	return parsed, nil
}

func bestBodyText(parts []emailPart) string {
	for _, part := range parts {
		if part.mediaType == "text/plain" && !strings.Contains(part.disposition, "attachment") {
			return strings.TrimSpace(string(part.data))
		}
	}
	for _, part := range parts {
		if part.mediaType == "text/html" && !strings.Contains(part.disposition, "attachment") {
			return htmlToText(string(part.data))
		}
	}
	return ""
}

const maxNestingDepth = 8

// collectParts flattens the MIME tree into leaf parts with decoded
// content.
func collectParts(header textproto.MIMEHeader, body io.Reader, depth int) ([]emailPart, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("mime nesting exceeds %d levels", maxNestingDepth)
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message without boundary")
		}
		reader := multipart.NewReader(body, boundary)
		var parts []emailPart
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return parts, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read mime part: %w", err)
			}
			sub, err := collectParts(part.Header, part, depth+1)
			if err != nil {
				return nil, err
			}
			parts = append(parts, sub...)
		}
	}

	data, err := decodeBody(header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return nil, err
	}
	return []emailPart{{
		mediaType:   mediaType,
		disposition: strings.ToLower(header.Get("Content-Disposition")),
		filename:    partFilename(header),
		contentID:   strings.Trim(header.Get("Content-Id"), "<>"),
		data:        data,
	}}, nil
}

// decodeBody applies the transfer encoding. multipart.Part already strips
// quoted-printable and removes the header, so this handles base64 and the
// top-level non-multipart body.
func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, newLineStripper(body))
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mime body: %w", err)
	}
	return data, nil
}

func partFilename(header textproto.MIMEHeader) string {
	if disp := header.Get("Content-Disposition"); disp != "" {
		if _, params, err := mime.ParseMediaType(disp); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	if ct := header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			return params["name"]
		}
	}
	return ""
}

// lineStripper removes CR/LF so wrapped base64 bodies decode cleanly.
type lineStripper struct {
	r io.Reader
}

func newLineStripper(r io.Reader) io.Reader {
	return &lineStripper{r: r}
}

func (l *lineStripper) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	kept := 0
	for i := 0; i < n; i++ {
		if p[i] == '\r' || p[i] == '\n' {
			continue
		}
		p[kept] = p[i]
		kept++
	}
	if kept == 0 && err == nil && n > 0 {
		return l.Read(p)
	}
	return kept, err
}
