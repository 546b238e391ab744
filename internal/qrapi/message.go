package qrapi

import (
	"encoding/json"
	"strings"
)

const (
	msgListFailed     = "Failed to fetch QR code history."
	msgCreateFailed   = "Failed to save QR code."
	msgDeleteFailed   = "Failed to delete on the server."
	msgDownloadFailed = "Failed to download QR image."
)

// extractMessage pulls a human-readable message out of an error body.
// Precedence: detail, errors.link[0], message, then a top-level link[0] as
// sent by serializer validation. Bodies that are not JSON objects yield "".
func extractMessage(body []byte) string {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}

	if s := rawString(env["detail"]); s != "" {
		return s
	}

	if raw, ok := env["errors"]; ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			if s := firstString(fields["link"]); s != "" {
				return s
			}
		}
	}

	if s := rawString(env["message"]); s != "" {
		return s
	}

	return firstString(env["link"])
}

// messageOr returns the extracted message or fallback.
func messageOr(body []byte, fallback string) string {
	if s := extractMessage(body); s != "" {
		return s
	}
	return fallback
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return ""
	}
	return strings.TrimSpace(list[0])
}
