// Package qrapitest provides an in-memory QR code collection backend that
// speaks the same REST dialect as the production API. Tests use it to drive
// the client, the sync controller and the gateway end to end.
package qrapitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// CollectionPath is the path of the collection resource.
const CollectionPath = "/api/v1/qr-generate/"

// Operation names used by Fail, Hold and Calls.
const (
	OpList   = "list"
	OpCreate = "create"
	OpDelete = "delete"
	OpImage  = "image"
)

// PNG is the body served for every stored QR image.
var PNG = []byte("\x89PNG\r\n\x1a\nqrapitest")

// Record is the wire shape the backend stores and serves.
type Record struct {
	ID        int64   `json:"id"`
	Link      string  `json:"link"`
	QRCode    *string `json:"qr_code"`
	CreatedAt string  `json:"created_at"`
}

// ListMode selects the list response shape.
type ListMode int

const (
	// ListBare answers with a plain JSON array.
	ListBare ListMode = iota
	// ListPaginated answers with a {count, next, previous, results} envelope.
	ListPaginated
)

// Failure is a canned response returned instead of the normal one.
// Body is encoded as JSON when set; otherwise RawBody is sent verbatim.
type Failure struct {
	Status  int
	Body    any
	RawBody string
}

type hold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Backend is a running fake API server.
type Backend struct {
	mu       sync.Mutex
	records  []Record
	nextID   int64
	mode     ListMode
	pageSize int
	listBody *string
	failures map[string]Failure
	holds    map[string]*hold
	issued   []*hold
	calls    map[string]int
	now      func() time.Time

	server *httptest.Server
}

// Option configures a Backend.
type Option func(*Backend)

// WithListMode sets the list response shape.
func WithListMode(mode ListMode) Option {
	return func(b *Backend) { b.mode = mode }
}

// WithPageSize sets the envelope page size (default 10).
func WithPageSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// WithClock sets the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New starts a Backend and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		nextID:   1,
		pageSize: 10,
		failures: make(map[string]Failure),
		holds:    make(map[string]*hold),
		calls:    make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}

	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.Close)
	return b
}

func (b *Backend) routes() *gin.Engine {
	r := gin.New()
	r.GET(CollectionPath, b.list)
	r.POST(CollectionPath, b.create)
	r.DELETE(CollectionPath+":id/", b.delete)
	r.GET("/media/qr_codes/:name", b.image)
	return r
}

// Close shuts the server down. It is safe to call more than once.
func (b *Backend) Close() {
	b.mu.Lock()
	issued := b.issued
	b.issued = nil
	b.mu.Unlock()
	for _, h := range issued {
		h.once.Do(func() { close(h.release) })
	}
	b.server.Close()
}

// URL returns the collection endpoint URL.
func (b *Backend) URL() string { return b.server.URL + CollectionPath }

// Origin returns the server origin.
func (b *Backend) Origin() string { return b.server.URL }

// Seed stores a record directly and returns it.
func (b *Backend) Seed(link string) Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertLocked(link)
}

// SeedWithoutImage stores a record whose qr_code is null.
func (b *Backend) SeedWithoutImage(link string) Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.insertLocked(link)
	b.records[len(b.records)-1].QRCode = nil
	rec.QRCode = nil
	return rec
}

// Records returns a copy of the stored records.
func (b *Backend) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.records...)
}

// SetListBody makes successful list calls answer with body verbatim.
func (b *Backend) SetListBody(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listBody = &body
}

// Fail makes every following call of op answer with f.
func (b *Backend) Fail(op string, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = f
}

// Recover removes a failure installed with Fail.
func (b *Backend) Recover(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, op)
}

// Calls reports how many requests for op were received.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Hold parks the next request for op until release is called. entered is
// closed once that request has arrived.
func (b *Backend) Hold(op string) (entered <-chan struct{}, release func()) {
	h := &hold{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	b.mu.Lock()
	b.holds[op] = h
	b.issued = append(b.issued, h)
	b.mu.Unlock()
	return h.entered, func() { h.once.Do(func() { close(h.release) }) }
}

// begin counts the call, waits on a pending hold and reports an installed
// failure.
func (b *Backend) begin(c *gin.Context, op string) (Failure, bool) {
	b.mu.Lock()
	b.calls[op]++
	h := b.holds[op]
	delete(b.holds, op)
	b.mu.Unlock()

	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-c.Request.Context().Done():
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.failures[op]
	return f, ok
}

func writeFailure(c *gin.Context, f Failure) {
	if f.Body != nil {
		c.JSON(f.Status, f.Body)
		return
	}
	c.Data(f.Status, "application/json", []byte(f.RawBody))
}

func (b *Backend) list(c *gin.Context) {
	if f, ok := b.begin(c, OpList); ok {
		writeFailure(c, f)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listBody != nil {
		c.Data(http.StatusOK, "application/json", []byte(*b.listBody))
		return
	}

	records := append([]Record{}, b.records...)
	if b.mode == ListBare {
		c.JSON(http.StatusOK, records)
		return
	}

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	start := (page - 1) * b.pageSize
	if start > len(records) {
		start = len(records)
	}
	end := start + b.pageSize
	if end > len(records) {
		end = len(records)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(records),
		"next":     b.pageLink(c, page+1, end < len(records)),
		"previous": b.pageLink(c, page-1, page > 1),
		"results":  records[start:end],
	})
}

func (b *Backend) pageLink(c *gin.Context, page int, ok bool) *string {
	if !ok {
		return nil
	}
	u := url.URL{
		Scheme:   "http",
		Host:     c.Request.Host,
		Path:     CollectionPath,
		RawQuery: "page=" + strconv.Itoa(page),
	}
	s := u.String()
	return &s
}

type createBody struct {
	Link string `json:"link"`
}

func (b *Backend) create(c *gin.Context) {
	if f, ok := b.begin(c, OpCreate); ok {
		writeFailure(c, f)
		return
	}

	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error - " + err.Error()})
		return
	}

	link := strings.TrimSpace(body.Link)
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"link": []string{"This field may not be blank."}}})
		return
	}
	u, err := url.ParseRequestURI(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"link": []string{"Enter a valid URL."}}})
		return
	}

	b.mu.Lock()
	rec := b.insertLocked(link)
	b.mu.Unlock()

	c.JSON(http.StatusCreated, rec)
}

func (b *Backend) delete(c *gin.Context) {
	if f, ok := b.begin(c, OpDelete); ok {
		writeFailure(c, f)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, rec := range b.records {
		if rec.ID == id {
			b.records = append(b.records[:i], b.records[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "No QRCode matches the given query."})
}

func (b *Backend) image(c *gin.Context) {
	if f, ok := b.begin(c, OpImage); ok {
		writeFailure(c, f)
		return
	}

	ref := "/media/qr_codes/" + c.Param("name")

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.records {
		if rec.QRCode != nil && *rec.QRCode == ref {
			c.Data(http.StatusOK, "image/png", PNG)
			return
		}
	}
	c.Status(http.StatusNotFound)
}

func (b *Backend) insertLocked(link string) Record {
	ref := fmt.Sprintf("/media/qr_codes/qr_%d.png", b.nextID)
	rec := Record{
		ID:        b.nextID,
		Link:      link,
		QRCode:    &ref,
		CreatedAt: b.now().Format(time.RFC3339),
	}
	b.nextID++
	b.records = append(b.records, rec)
	return rec
}
