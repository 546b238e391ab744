package qrapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a server-assigned record identifier. The backend may send it as a
// JSON number or a JSON string; it is carried as text either way.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts numeric and string identifiers. A JSON null leaves the
// ID empty.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}

	switch x := v.(type) {
	case string:
		*id = ID(x)
	case json.Number:
		*id = ID(x.String())
	default:
		return fmt.Errorf("invalid id: expected number or string, got %s", b)
	}
	return nil
}

// MarshalJSON writes integer identifiers back as numbers and anything else as
// a string, so a record survives a round trip unchanged.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Record is one QR code history entry.
type Record struct {
	ID         ID        `json:"id"`
	Link       string    `json:"link"`
	QRImageRef *string   `json:"qr_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// createdAtLayouts are tried in order. Backends running without time zone
// support send local timestamps with no offset; those are read as UTC.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON decodes a record, reading created_at leniently. A missing,
// null or unreadable created_at leaves CreatedAt zero instead of failing the
// record.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	r.CreatedAt = parseCreatedAt(aux.CreatedAt)
	return nil
}

func parseCreatedAt(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type createRequest struct {
	Link string `json:"link"`
}
