package httpx

import (
	"net/http"
	"testing"

	"github.com/sundayezeilo/qrhistory/internal/errx"
)

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		name       string
		kind       errx.Kind
		wantStatus int
		wantCode   string
	}{
		{name: "invalid", kind: errx.Invalid, wantStatus: http.StatusBadRequest, wantCode: "invalid_input"},
		{name: "validation", kind: errx.Validation, wantStatus: http.StatusUnprocessableEntity, wantCode: "validation_failed"},
		{name: "network", kind: errx.Network, wantStatus: http.StatusBadGateway, wantCode: "upstream_unreachable"},
		{name: "malformed", kind: errx.Malformed, wantStatus: http.StatusBadGateway, wantCode: "upstream_malformed"},
		{name: "delete failed", kind: errx.DeleteFailed, wantStatus: http.StatusBadGateway, wantCode: "delete_failed"},
		{name: "unavailable", kind: errx.Unavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "unavailable"},
		{name: "unknown", kind: errx.Unknown, wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
		{name: "invalid kind value", kind: errx.Kind(99), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKindToStatus(tt.kind); got != tt.wantStatus {
				t.Errorf("ErrorKindToStatus(%v) = %d, want %d", tt.kind, got, tt.wantStatus)
			}
			if got := ErrorKindToCode(tt.kind); got != tt.wantCode {
				t.Errorf("ErrorKindToCode(%v) = %q, want %q", tt.kind, got, tt.wantCode)
			}
		})
	}
}

