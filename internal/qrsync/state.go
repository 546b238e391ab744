package qrsync

import "github.com/sundayezeilo/qrhistory/internal/qrapi"

// State is a snapshot of the controller. Records is the collection mirror in
// server order.
type State struct {
	Records      []qrapi.Record
	IsLoading    bool
	IsSubmitting bool
	LastError    string
	LastSuccess  string
	Draft        string
}

// clone returns a deep copy so callers never share memory with the mirror.
func (s State) clone() State {
	s.Records = cloneRecords(s.Records)
	return s
}

func cloneRecords(recs []qrapi.Record) []qrapi.Record {
	out := make([]qrapi.Record, len(recs))
	for i, rec := range recs {
		if rec.QRImageRef != nil {
			ref := *rec.QRImageRef
			rec.QRImageRef = &ref
		}
		out[i] = rec
	}
	return out
}

func indexOf(recs []qrapi.Record, id qrapi.ID) int {
	for i, rec := range recs {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// without returns recs minus every record with the given id.
func without(recs []qrapi.Record, id qrapi.ID) []qrapi.Record {
	out := make([]qrapi.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out
}

// merge replaces the record with the same id, or appends rec.
func merge(recs []qrapi.Record, rec qrapi.Record) []qrapi.Record {
	out := cloneRecords(recs)
	rec = cloneRecords([]qrapi.Record{rec})[0]
	if i := indexOf(out, rec.ID); i >= 0 {
		out[i] = rec
		return out
	}
	return append(out, rec)
}
