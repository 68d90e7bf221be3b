package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMail = "From: momo <service@momoshop.com.tw>\r\n" +
	"To: buyer@example.com\r\n" +
	"Subject: =?UTF-8?B?bW9tb+izvOeJqSDoqILllq7miJDnq4vpgJrnn6U=?=\r\n" +
	"Date: Tue, 03 Sep 2024 10:15:00 +0800\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"=E8=A8=82=E5=96=AE=E9=87=91=E9=A1=8D=EF=BC=9ANT$1,280\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>ignored when plain text exists</p>\r\n" +
	"--b1--\r\n"

const htmlOnlyMail = "From: shop@example.com\r\n" +
	"Subject: Your receipt\r\n" +
	"Date: Mon, 02 Sep 2024 08:00:00 +0000\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><style>p{color:red}</style><body><p>Total:&nbsp;<b>$42</b></p></body></html>\r\n"

func TestParseMessageMultipart(t *testing.T) {
	msg, err := ParseMessage("m1", []byte(multipartMail))
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "momo購物 訂單成立通知", msg.Subject)
	assert.Equal(t, "momo <service@momoshop.com.tw>", msg.From)
	assert.True(t, msg.Date.Equal(time.Date(2024, 9, 3, 2, 15, 0, 0, time.UTC)))
	assert.Equal(t, "訂單金額：NT$1,280", msg.Text)
	assert.Contains(t, msg.ClassificationText(), "Subject: momo購物 訂單成立通知")
}

func TestParseMessageHTMLOnly(t *testing.T) {
	msg, err := ParseMessage("m2", []byte(htmlOnlyMail))
	require.NoError(t, err)

	assert.Equal(t, "shop@example.com", msg.From)
	assert.Equal(t, "Total: $42", msg.Text)
	assert.NotContains(t, msg.Text, "color")
}

func TestDecodeRaw(t *testing.T) {
	payload := []byte("Subject: hi\r\n\r\nbody?>")

	padded := base64.URLEncoding.EncodeToString(payload)
	got, err := decodeRaw(padded)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	unpadded := base64.RawURLEncoding.EncodeToString(payload)
	got, err = decodeRaw(unpadded)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "訂單", snippet("訂單金額", 2))
	assert.Equal(t, "short", snippet("short", 10))
}
