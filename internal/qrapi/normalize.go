package qrapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidFormat is wrapped by every list decoding failure.
var ErrInvalidFormat = errors.New("invalid data format received from server")

// Page is one decoded list response.
type Page struct {
	Records []Record
	// Next is the envelope's next-page URL. Empty for bare arrays and for the
	// last page.
	Next string
}

// listEnvelope is the paginated list shape. Only results and next are read;
// count and previous are ignored.
type listEnvelope struct {
	Results json.RawMessage `json:"results"`
	Next    *string         `json:"next"`
}

// DecodeList normalizes a list response body into an ordered record sequence.
//
// Two shapes are accepted: a bare JSON array of records, or a JSON object
// whose "results" field is such an array. Every other shape, including an
// object without results or with a non-array results value, fails with an
// error wrapping ErrInvalidFormat. Server order is preserved and every record
// must carry an id.
func DecodeList(body []byte) (Page, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Page{}, fmt.Errorf("%w: empty body", ErrInvalidFormat)
	}

	var (
		page    Page
		records json.RawMessage
	)

	switch trimmed[0] {
	case '[':
		records = trimmed

	case '{':
		var env listEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Page{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		results := bytes.TrimSpace(env.Results)
		if len(results) == 0 || results[0] != '[' {
			return Page{}, fmt.Errorf("%w: object has no results array", ErrInvalidFormat)
		}
		records = results
		if env.Next != nil {
			page.Next = *env.Next
		}

	default:
		return Page{}, fmt.Errorf("%w: expected a list or an object with results", ErrInvalidFormat)
	}

	if err := json.Unmarshal(records, &page.Records); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	for i, rec := range page.Records {
		if rec.ID == "" {
			return Page{}, fmt.Errorf("%w: record %d has no id", ErrInvalidFormat, i)
		}
	}
	if page.Records == nil {
		page.Records = []Record{}
	}

	return page, nil
}
