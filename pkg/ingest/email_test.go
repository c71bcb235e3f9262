package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartEmail = "From: Alice <alice@example.com>\r\n" +
	"Subject: Damaged order A10023\r\n" +
	"Message-Id: <abc123@mail.example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
	"\r\n" +
	"I need a refund for order A10023.\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf; name=\"receipt.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"receipt.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestParseEmailMultipart(t *testing.T) {
	parsed, err := ParseEmail([]byte(multipartEmail))
	require.NoError(t, err)

	assert.Equal(t, "Alice <alice@example.com>", parsed.From)
	assert.Equal(t, "Damaged order A10023", parsed.Subject)
	assert.Equal(t, "abc123@mail.example.com", parsed.MessageID)
	assert.Equal(t, time.Date(2006, time.January, 2, 22, 4, 5, 0, time.UTC), parsed.Date)
	assert.Equal(t, "I need a refund for order A10023.", parsed.BodyText)

	require.Len(t, parsed.Attachments, 1)
	att := parsed.Attachments[0]
	assert.Equal(t, "receipt.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.Mime)
	assert.Equal(t, []byte("%PDF-1.4"), att.Data)
}

func TestParseEmailHTMLFallback(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/html; charset=\"utf-8\"\r\n" +
		"\r\n" +
		"<p>Where is&nbsp;my <b>order</b>?</p>\r\n"

	parsed, err := ParseEmail([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Where is my  order ?", parsed.BodyText)
	assert.Empty(t, parsed.Attachments)
}

func TestParseEmailSkipsInlineCidImages(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: signature\r\n" +
		"Content-Type: multipart/related; boundary=\"rel\"\r\n" +
		"\r\n" +
		"--rel\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>Hello</p><img src=\"cid:logo1\">\r\n" +
		"--rel\r\n" +
		"Content-Type: image/png; name=\"logo.png\"\r\n" +
		"Content-Id: <logo1>\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"iVBORw0KGgo=\r\n" +
		"--rel\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Disposition: attachment; filename=\"photo.jpg\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"/9j/4AAQ\r\n" +
		"--rel--\r\n"

	parsed, err := ParseEmail([]byte(raw))
	require.NoError(t, err)

	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "photo.jpg", parsed.Attachments[0].Filename)
	assert.Equal(t, "image/jpeg", parsed.Attachments[0].Mime)
}

func TestParseEmailKeepsInlineAudioWithoutDisposition(t *testing.T) {
	raw := "From: carol@example.com\r\n" +
		"Subject: voice note\r\n" +
		"Content-Type: multipart/mixed; boundary=\"mix\"\r\n" +
		"\r\n" +
		"--mix\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--mix\r\n" +
		"Content-Type: audio/ogg\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"T2dnUw==\r\n" +
		"--mix--\r\n"

	parsed, err := ParseEmail([]byte(raw))
	require.NoError(t, err)

	require.Len(t, parsed.Attachments, 1)
	att := parsed.Attachments[0]
	assert.Equal(t, "audio/ogg", att.Mime)
	assert.True(t, strings.HasSuffix(att.Filename, ".ogg"), "generated filename: %s", att.Filename)
	assert.Equal(t, []byte("OggS"), att.Data)
}

func TestParseEmailRejectsGarbage(t *testing.T) {
	_, err := ParseEmail([]byte("totally not an email"))
	require.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "a b", htmlToText("<div>a</div><span>b</span>"))
}
