package qrapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/httpx"
)

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

// ResolveImageURL turns a record's image reference into a fetchable URL.
// Absolute http(s) references are returned unchanged; anything else is
// resolved against the origin of apiBase with exactly one slash between them.
// An empty reference yields "", and an unparseable apiBase yields ref as is.
func ResolveImageURL(apiBase, ref string) string {
	if ref == "" {
		return ""
	}
	if absoluteURLPattern.MatchString(ref) {
		return ref
	}

	u, err := url.Parse(apiBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ref
	}
	return u.Scheme + "://" + u.Host + "/" + strings.TrimLeft(ref, "/")
}

// ImageURL resolves ref against the client's endpoint origin.
func (c *Client) ImageURL(ref *string) string {
	if ref == nil {
		return ""
	}
	return ResolveImageURL(c.baseURL, *ref)
}

// DownloadImage streams the record's QR image into w and returns the number of
// bytes written.
func (c *Client) DownloadImage(ctx context.Context, rec Record, w io.Writer) (int64, error) {
	const op = "qrapi.client.DownloadImage"

	src := c.ImageURL(rec.QRImageRef)
	if src == "" {
		return 0, errx.E(op, errx.Invalid, errors.New("record has no QR image"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, errx.E(op, errx.Invalid, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set(httpx.RequestIDHeader, c.requestIDFor(ctx))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errx.E(op, errx.Network, fmt.Errorf("could not reach server: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errx.E(op, errx.Unavailable, errors.New(msgDownloadFailed))
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, MaxResponseBodySize))
	if err != nil {
		return n, errx.E(op, errx.Network, fmt.Errorf("read image: %w", err))
	}

	c.logger.DebugContext(ctx, "qr image downloaded",
		"id", rec.ID.String(),
		"url", src,
		"bytes", n,
	)
	return n, nil
}
