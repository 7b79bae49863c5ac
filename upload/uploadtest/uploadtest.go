// Package uploadtest builds multipart upload requests for tests.
package uploadtest

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

// Sample file contents recognised by content sniffing.
var (
	PNG  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	JPEG = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	GIF  = append([]byte("GIF89a"), make([]byte, 32)...)
	EXE  = append([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"), make([]byte, 64)...)
)

// Part is one file in a multipart body.
type Part struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Field is a plain form value.
type Field struct {
	Name  string
	Value string
}

// Body encodes parts and fields and returns the body and its content type.
func Body(t testing.TB, parts []Part, fields ...Field) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Field, p.Filename))
		h.Set("Content-Type", p.ContentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := pw.Write(p.Data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

// NewRequest returns a POST request to target carrying parts.
func NewRequest(t testing.TB, target string, parts []Part, fields ...Field) *http.Request {
	t.Helper()
	body, contentType := Body(t, parts, fields...)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

// Sized returns n bytes starting with a PNG signature.
func Sized(n int) []byte {
	b := make([]byte, n)
	copy(b, PNG)
	return b
}
