package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestUploadProbePlainText(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("test", "1")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/call-upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h := &UploadHandler{Log: zerolog.Nop()}
	h.Upload(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "incomplete call data: no talkgroup") {
		t.Errorf("body = %q, want to contain probe message", rec.Body.String())
	}
}

func TestUploadProbeJSON(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("test", "1")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/call-upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	h := &UploadHandler{Log: zerolog.Nop()}
	h.Upload(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"ok"`) || !strings.Contains(body, `"callId":"test"`) {
		t.Errorf("body = %q, want JSON probe response", body)
	}
}
