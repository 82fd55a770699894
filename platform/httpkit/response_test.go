package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"zapflow_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

func handleOn(t *testing.T, err error) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return rec, HandleError(c, err)
}

func TestHandleError_MapsDomainKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    *apperr.Error
		status int
	}{
		{"not found", apperr.NotFound("campaign not found"), http.StatusNotFound},
		{"validation", apperr.Validation("invalid campaign id"), http.StatusBadRequest},
		{"conflict", apperr.Conflict("duplicate"), http.StatusConflict},
		{"unauthorized", apperr.Unauthorized("token required"), http.StatusUnauthorized},
		{"internal", apperr.Internal("internal error"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, handled := handleOn(t, tc.err)
			if !handled {
				t.Fatalf("expected error to be handled")
			}
			if rec.Code != tc.status {
				t.Fatalf("got status %d, want %d", rec.Code, tc.status)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid response body: %v", err)
			}
			if body.Error != tc.err.Message {
				t.Fatalf("got message %q, want %q", body.Error, tc.err.Message)
			}
		})
	}
}

func TestHandleError_UntypedErrorDefaultsToBadRequest(t *testing.T) {
	rec, handled := handleOn(t, errors.New("boom"))
	if !handled {
		t.Fatalf("expected error to be handled")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleError_NilIsNotHandled(t *testing.T) {
	_, handled := handleOn(t, nil)
	if handled {
		t.Fatalf("nil error must not be handled")
	}
}
