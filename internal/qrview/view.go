// Package qrview presents controller state to clients. It renders no markup:
// it turns a qrsync.State into a JSON view with resolved image URLs, download
// names and a live preview URL for the draft link, and serves that view over
// HTTP.
package qrview

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sundayezeilo/qrhistory/internal/qrapi"
	"github.com/sundayezeilo/qrhistory/internal/qrsync"
)

const (
	DefaultPreviewBaseURL = "https://api.qrserver.com/v1/create-qr-code/"
	DefaultPreviewSize    = 160
)

// PlaceholderDataURL stands in for records without a QR image.
var PlaceholderDataURL = "data:image/svg+xml;utf8," + encodeURIComponent(
	`<svg xmlns='http://www.w3.org/2000/svg' width='160' height='160' viewBox='0 0 160 160'>`+
		`<rect width='100%' height='100%' fill='#f6fff7'/>`+
		`<text x='50%' y='50%' dominant-baseline='middle' text-anchor='middle' fill='#9bbd9c' font-family='Arial' font-size='12'>No Image</text>`+
		`</svg>`)

// ImageResolver turns a record's image reference into a fetchable URL.
// *qrapi.Client implements it.
type ImageResolver interface {
	ImageURL(ref *string) string
}

// RecordView is one history entry as shown to clients.
type RecordView struct {
	ID           qrapi.ID  `json:"id"`
	Link         string    `json:"link"`
	QRCode       *string   `json:"qr_code"`
	ImageURL     string    `json:"image_url"`
	HasImage     bool      `json:"has_image"`
	DownloadName string    `json:"download_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// DraftView is the link being typed and its live preview.
type DraftView struct {
	Link       string `json:"link"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// View is the full client-facing state.
type View struct {
	Records      []RecordView `json:"records"`
	IsLoading    bool         `json:"is_loading"`
	IsSubmitting bool         `json:"is_submitting"`
	LastError    string       `json:"last_error,omitempty"`
	LastSuccess  string       `json:"last_success,omitempty"`
	Draft        DraftView    `json:"draft"`
}

// Presenter builds views.
type Presenter struct {
	images      ImageResolver
	previewBase string
	previewSize int
	now         func() time.Time
}

// PresenterConfig holds configuration for the presenter.
type PresenterConfig struct {
	Images         ImageResolver
	PreviewBaseURL string // default: api.qrserver.com create-qr-code endpoint
	PreviewSize    int    // square edge in pixels (default: 160)
	Now            func() time.Time
}

// NewPresenter creates a Presenter.
func NewPresenter(cfg PresenterConfig) *Presenter {
	base := strings.TrimSpace(cfg.PreviewBaseURL)
	if base == "" {
		base = DefaultPreviewBaseURL
	}

	size := cfg.PreviewSize
	if size <= 0 {
		size = DefaultPreviewSize
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Presenter{
		images:      cfg.Images,
		previewBase: base,
		previewSize: size,
		now:         now,
	}
}

// Build converts a controller snapshot into a View.
func (p *Presenter) Build(s qrsync.State) View {
	name := DownloadName(p.now())

	records := make([]RecordView, 0, len(s.Records))
	for _, rec := range s.Records {
		rv := p.record(rec)
		rv.DownloadName = name
		records = append(records, rv)
	}

	return View{
		Records:      records,
		IsLoading:    s.IsLoading,
		IsSubmitting: s.IsSubmitting,
		LastError:    s.LastError,
		LastSuccess:  s.LastSuccess,
		Draft: DraftView{
			Link:       s.Draft,
			PreviewURL: p.PreviewURL(s.Draft),
		},
	}
}

func (p *Presenter) record(rec qrapi.Record) RecordView {
	rv := RecordView{
		ID:        rec.ID,
		Link:      rec.Link,
		QRCode:    rec.QRImageRef,
		CreatedAt: rec.CreatedAt,
	}
	if p.images != nil {
		rv.ImageURL = p.images.ImageURL(rec.QRImageRef)
	}
	rv.HasImage = rv.ImageURL != ""
	if !rv.HasImage {
		rv.ImageURL = PlaceholderDataURL
	}
	return rv
}

// PreviewURL returns the live preview image URL for link, or "" for a blank
// link.
func (p *Presenter) PreviewURL(link string) string {
	if strings.TrimSpace(link) == "" {
		return ""
	}
	dim := strconv.Itoa(p.previewSize)
	return p.previewBase + "?size=" + dim + "x" + dim + "&data=" + encodeURIComponent(link)
}

// DownloadName returns the file name offered when a QR image is downloaded at
// t, e.g. "qr_2024-01-01T00-00-00-000Z.png".
func DownloadName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "qr_" + stamp + ".png"
}

// encodeURIComponent escapes s for use inside a URL component, encoding
// spaces as %20 rather than '+'.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
