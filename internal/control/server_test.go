package control

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func TestStatusFor_GwerrMapsToItsHTTPStatus(t *testing.T) {
	err := gwerr.New(gwerr.KindUnknownSession, "sess_1")
	if got := statusFor(err); got != http.StatusNotFound {
		t.Fatalf("expected 404 for KindUnknownSession, got %d", got)
	}
}

func TestStatusFor_PlainErrorIsInternalServerError(t *testing.T) {
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a plain error, got %d", got)
	}
}

func TestWriteGwerr_EncodesCodeAndMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeGwerr(w, gwerr.New(gwerr.KindValidationError, "bad input"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !jsonContains(w.Body.String(), `"code":"invalid_request"`) {
		t.Fatalf("expected invalid_request code in body, got %s", w.Body.String())
	}
}

func TestWriteGwerr_PlainErrorBecomesInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	writeGwerr(w, errors.New("unexpected"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !jsonContains(w.Body.String(), `"code":"internal_error"`) {
		t.Fatalf("expected internal_error code in body, got %s", w.Body.String())
	}
}

func jsonContains(body, needle string) bool {
	for i := 0; i+len(needle) <= len(body); i++ {
		if body[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
