package qrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/httpx"
	"github.com/sundayezeilo/qrhistory/internal/qrapi/qrapitest"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Logger: newTestLogger(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func ids(recs []Record) []ID {
	out := make([]ID, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func equalIDs(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

/***************
 * Constructor
 ***************/

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
		wantErr bool
	}{
		{name: "adds trailing slash", baseURL: "http://127.0.0.1:8000/api/v1/qr-generate", want: "http://127.0.0.1:8000/api/v1/qr-generate/"},
		{name: "keeps trailing slash", baseURL: "https://api.example.com/qr/", want: "https://api.example.com/qr/"},
		{name: "bare origin", baseURL: "http://localhost:8000", want: "http://localhost:8000/"},
		{name: "empty", baseURL: "", wantErr: true},
		{name: "missing scheme", baseURL: "api.example.com/qr/", wantErr: true},
		{name: "ftp scheme", baseURL: "ftp://example.com/qr/", wantErr: true},
		{name: "missing host", baseURL: "http:///qr/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL})
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() error = nil, want error")
				}
				if got := errx.KindOf(err); got != errx.Invalid {
					t.Errorf("KindOf() = %v, want %v", got, errx.Invalid)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if got := c.BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

/***************
 * ListAll
 ***************/

func TestClient_ListAll(t *testing.T) {
	ctx := context.Background()

	t.Run("bare array preserves server order", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Seed("https://a.com")
		backend.Seed("https://b.com")
		backend.Seed("https://c.com")

		recs, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() error: %v", err)
		}
		if got, want := ids(recs), []ID{"1", "2", "3"}; !equalIDs(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		if recs[1].Link != "https://b.com" {
			t.Errorf("recs[1].Link = %q", recs[1].Link)
		}
	})

	t.Run("empty collection yields empty non-nil slice", func(t *testing.T) {
		backend := qrapitest.New(t)

		recs, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() error: %v", err)
		}
		if recs == nil || len(recs) != 0 {
			t.Errorf("recs = %#v, want empty slice", recs)
		}
	})

	t.Run("envelope pages are followed in order", func(t *testing.T) {
		backend := qrapitest.New(t,
			qrapitest.WithListMode(qrapitest.ListPaginated),
			qrapitest.WithPageSize(2),
		)
		for _, l := range []string{"https://1.com", "https://2.com", "https://3.com", "https://4.com", "https://5.com"} {
			backend.Seed(l)
		}

		recs, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() error: %v", err)
		}
		if got, want := ids(recs), []ID{"1", "2", "3", "4", "5"}; !equalIDs(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
		if got := backend.Calls(qrapitest.OpList); got != 3 {
			t.Errorf("list calls = %d, want 3", got)
		}
	})

	t.Run("page limit exceeded is malformed", func(t *testing.T) {
		backend := qrapitest.New(t,
			qrapitest.WithListMode(qrapitest.ListPaginated),
			qrapitest.WithPageSize(1),
		)
		backend.Seed("https://1.com")
		backend.Seed("https://2.com")
		backend.Seed("https://3.com")

		c, err := New(Config{BaseURL: backend.URL(), MaxPages: 2, Logger: newTestLogger()})
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		_, err = c.ListAll(ctx)
		if got := errx.KindOf(err); got != errx.Malformed {
			t.Errorf("KindOf() = %v, want %v (err=%v)", got, errx.Malformed, err)
		}
	})

	t.Run("duplicate ids across pages are dropped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") == "2" {
				_, _ = io.WriteString(w, `{"next":null,"results":[{"id":2,"link":"https://b.com"},{"id":3,"link":"https://c.com"}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"next":"?page=2","results":[{"id":1,"link":"https://a.com"},{"id":2,"link":"https://b.com"}]}`)
		}))
		defer srv.Close()

		recs, err := newTestClient(t, srv.URL+"/api/").ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() error: %v", err)
		}
		if got, want := ids(recs), []ID{"1", "2", "3"}; !equalIDs(got, want) {
			t.Errorf("ids = %v, want %v", got, want)
		}
	})

	t.Run("unexpected shape is malformed", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.SetListBody(`{"data":[]}`)

		_, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if got := errx.KindOf(err); got != errx.Malformed {
			t.Errorf("KindOf() = %v, want %v", got, errx.Malformed)
		}
		if !strings.Contains(errx.MessageOf(err), "invalid data format") {
			t.Errorf("MessageOf() = %q", errx.MessageOf(err))
		}
	})

	t.Run("server error carries extracted message", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpList, qrapitest.Failure{
			Status: http.StatusServiceUnavailable,
			Body:   map[string]string{"detail": "Maintenance in progress."},
		})

		_, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if got := errx.KindOf(err); got != errx.Unavailable {
			t.Errorf("KindOf() = %v, want %v", got, errx.Unavailable)
		}
		if got := errx.MessageOf(err); got != "Maintenance in progress." {
			t.Errorf("MessageOf() = %q", got)
		}
	})

	t.Run("server error without body uses fallback", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpList, qrapitest.Failure{Status: http.StatusInternalServerError})

		_, err := newTestClient(t, backend.URL()).ListAll(ctx)
		if got := errx.MessageOf(err); got != msgListFailed {
			t.Errorf("MessageOf() = %q, want %q", got, msgListFailed)
		}
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		backend := qrapitest.New(t)
		url := backend.URL()
		backend.Close()

		_, err := newTestClient(t, url).ListAll(ctx)
		if got := errx.KindOf(err); got != errx.Network {
			t.Errorf("KindOf() = %v, want %v", got, errx.Network)
		}
	})

	t.Run("cancelled context is a network error", func(t *testing.T) {
		backend := qrapitest.New(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newTestClient(t, backend.URL()).ListAll(cctx)
		if got := errx.KindOf(err); got != errx.Network {
			t.Errorf("KindOf() = %v, want %v", got, errx.Network)
		}
	})
}

/***************
 * Create
 ***************/

func TestClient_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("returns created record", func(t *testing.T) {
		backend := qrapitest.New(t, qrapitest.WithClock(func() time.Time {
			return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		}))

		rec, err := newTestClient(t, backend.URL()).Create(ctx, "https://example.com/menu")
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if rec.ID != "1" {
			t.Errorf("ID = %q, want 1", rec.ID)
		}
		if rec.Link != "https://example.com/menu" {
			t.Errorf("Link = %q", rec.Link)
		}
		if rec.QRImageRef == nil || *rec.QRImageRef != "/media/qr_codes/qr_1.png" {
			t.Errorf("QRImageRef = %v", rec.QRImageRef)
		}
		if !rec.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("CreatedAt = %v", rec.CreatedAt)
		}
		if got := len(backend.Records()); got != 1 {
			t.Errorf("backend holds %d records, want 1", got)
		}
	})

	t.Run("invalid link is a validation error", func(t *testing.T) {
		backend := qrapitest.New(t)

		_, err := newTestClient(t, backend.URL()).Create(ctx, "not a url")
		if got := errx.KindOf(err); got != errx.Validation {
			t.Errorf("KindOf() = %v, want %v", got, errx.Validation)
		}
		if got := errx.MessageOf(err); got != "Enter a valid URL." {
			t.Errorf("MessageOf() = %q", got)
		}
	})

	t.Run("detail takes precedence on 4xx", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpCreate, qrapitest.Failure{
			Status: http.StatusBadRequest,
			Body: map[string]any{
				"detail": "Quota exceeded.",
				"errors": map[string]any{"link": []string{"Enter a valid URL."}},
			},
		})

		_, err := newTestClient(t, backend.URL()).Create(ctx, "https://a.com")
		if got := errx.MessageOf(err); got != "Quota exceeded." {
			t.Errorf("MessageOf() = %q", got)
		}
	})

	t.Run("unparseable 4xx body uses fallback", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpCreate, qrapitest.Failure{Status: http.StatusBadRequest, RawBody: "<h1>Bad Request</h1>"})

		_, err := newTestClient(t, backend.URL()).Create(ctx, "https://a.com")
		if got := errx.KindOf(err); got != errx.Validation {
			t.Errorf("KindOf() = %v, want %v", got, errx.Validation)
		}
		if got := errx.MessageOf(err); got != msgCreateFailed {
			t.Errorf("MessageOf() = %q, want %q", got, msgCreateFailed)
		}
	})

	t.Run("5xx is unavailable", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpCreate, qrapitest.Failure{Status: http.StatusBadGateway})

		_, err := newTestClient(t, backend.URL()).Create(ctx, "https://a.com")
		if got := errx.KindOf(err); got != errx.Unavailable {
			t.Errorf("KindOf() = %v, want %v", got, errx.Unavailable)
		}
	})

	t.Run("success body without id is malformed", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Fail(qrapitest.OpCreate, qrapitest.Failure{Status: http.StatusCreated, Body: map[string]string{"link": "https://a.com"}})

		_, err := newTestClient(t, backend.URL()).Create(ctx, "https://a.com")
		if got := errx.KindOf(err); got != errx.Malformed {
			t.Errorf("KindOf() = %v, want %v", got, errx.Malformed)
		}
	})

	t.Run("sends link as json", func(t *testing.T) {
		var gotBody map[string]string
		var gotContentType, gotRequestID string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			gotRequestID = r.Header.Get(httpx.RequestIDHeader)
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":9,"link":"https://a.com","qr_code":null,"created_at":"2024-01-01T00:00:00Z"}`)
		}))
		defer srv.Close()

		c, err := New(Config{
			BaseURL:   srv.URL + "/api/v1/qr-generate/",
			Logger:    newTestLogger(),
			RequestID: func() string { return "req-123" },
		})
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}

		rec, err := c.Create(ctx, "https://a.com")
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if rec.QRImageRef != nil {
			t.Errorf("QRImageRef = %v, want nil", *rec.QRImageRef)
		}
		if gotBody["link"] != "https://a.com" {
			t.Errorf("body link = %q", gotBody["link"])
		}
		if gotContentType != "application/json" {
			t.Errorf("Content-Type = %q", gotContentType)
		}
		if gotRequestID != "req-123" {
			t.Errorf("X-Request-ID = %q", gotRequestID)
		}
	})
}

/***************
 * Delete
 ***************/

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("no content is success", func(t *testing.T) {
		backend := qrapitest.New(t)
		rec := backend.Seed("https://a.com")
		backend.Seed("https://b.com")

		c := newTestClient(t, backend.URL())
		if err := c.Delete(ctx, ID("1")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		left := backend.Records()
		if len(left) != 1 || left[0].ID == rec.ID {
			t.Errorf("backend records after delete = %+v", left)
		}
	})

	t.Run("missing record carries detail", func(t *testing.T) {
		backend := qrapitest.New(t)

		err := newTestClient(t, backend.URL()).Delete(ctx, ID("99"))
		if got := errx.KindOf(err); got != errx.DeleteFailed {
			t.Errorf("KindOf() = %v, want %v", got, errx.DeleteFailed)
		}
		if got := errx.MessageOf(err); got != "No QRCode matches the given query." {
			t.Errorf("MessageOf() = %q", got)
		}
	})

	t.Run("non-json failure body uses fallback", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Seed("https://a.com")
		backend.Fail(qrapitest.OpDelete, qrapitest.Failure{Status: http.StatusInternalServerError, RawBody: "oops"})

		err := newTestClient(t, backend.URL()).Delete(ctx, ID("1"))
		if got := errx.MessageOf(err); got != msgDeleteFailed {
			t.Errorf("MessageOf() = %q, want %q", got, msgDeleteFailed)
		}
	})

	t.Run("empty id is rejected locally", func(t *testing.T) {
		backend := qrapitest.New(t)

		err := newTestClient(t, backend.URL()).Delete(ctx, ID(""))
		if got := errx.KindOf(err); got != errx.Invalid {
			t.Errorf("KindOf() = %v, want %v", got, errx.Invalid)
		}
		if got := backend.Calls(qrapitest.OpDelete); got != 0 {
			t.Errorf("delete calls = %d, want 0", got)
		}
	})

	t.Run("escapes id into path", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		if err := newTestClient(t, srv.URL+"/api/v1/qr-generate/").Delete(ctx, ID("a b")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if gotPath != "/api/v1/qr-generate/a%20b/" {
			t.Errorf("path = %q", gotPath)
		}
	})
}

/***************
 * Images
 ***************/

func TestResolveImageURL(t *testing.T) {
	const base = "http://127.0.0.1:8000/api/v1/qr-generate/"

	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{name: "empty", base: base, ref: "", want: ""},
		{name: "absolute http", base: base, ref: "http://cdn.test/q.png", want: "http://cdn.test/q.png"},
		{name: "absolute https uppercase", base: base, ref: "HTTPS://cdn.test/q.png", want: "HTTPS://cdn.test/q.png"},
		{name: "root relative", base: base, ref: "/media/qr_codes/q.png", want: "http://127.0.0.1:8000/media/qr_codes/q.png"},
		{name: "relative", base: base, ref: "media/q.png", want: "http://127.0.0.1:8000/media/q.png"},
		{name: "double slash collapses", base: base, ref: "//media/q.png", want: "http://127.0.0.1:8000/media/q.png"},
		{name: "unparseable base", base: "::", ref: "/media/q.png", want: "/media/q.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveImageURL(tt.base, tt.ref); got != tt.want {
				t.Errorf("ResolveImageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_DownloadImage(t *testing.T) {
	ctx := context.Background()

	t.Run("streams image bytes", func(t *testing.T) {
		backend := qrapitest.New(t)
		backend.Seed("https://a.com")
		c := newTestClient(t, backend.URL())

		recs, err := c.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll() error: %v", err)
		}

		var buf bytes.Buffer
		n, err := c.DownloadImage(ctx, recs[0], &buf)
		if err != nil {
			t.Fatalf("DownloadImage() error: %v", err)
		}
		if n != int64(len(qrapitest.PNG)) || !bytes.Equal(buf.Bytes(), qrapitest.PNG) {
			t.Errorf("downloaded %d bytes %q", n, buf.Bytes())
		}
	})

	t.Run("record without image is invalid", func(t *testing.T) {
		backend := qrapitest.New(t)
		c := newTestClient(t, backend.URL())

		_, err := c.DownloadImage(ctx, Record{ID: "1"}, io.Discard)
		if got := errx.KindOf(err); got != errx.Invalid {
			t.Errorf("KindOf() = %v, want %v", got, errx.Invalid)
		}
	})

	t.Run("missing image is unavailable", func(t *testing.T) {
		backend := qrapitest.New(t)
		c := newTestClient(t, backend.URL())
		ref := "/media/qr_codes/qr_404.png"

		_, err := c.DownloadImage(ctx, Record{ID: "404", QRImageRef: &ref}, io.Discard)
		if got := errx.KindOf(err); got != errx.Unavailable {
			t.Errorf("KindOf() = %v, want %v", got, errx.Unavailable)
		}
	})
}
