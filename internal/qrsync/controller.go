// Package qrsync keeps an in-memory mirror of the remote QR code collection.
// Deletes are applied optimistically and rolled back when the server rejects
// them; creates are confirmed by the server before they reach the mirror.
package qrsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sundayezeilo/qrhistory/internal/errx"
	"github.com/sundayezeilo/qrhistory/internal/qrapi"
)

const (
	DefaultSuccessTTL = 3 * time.Second

	MsgSaved   = "QR code saved."
	MsgDeleted = "QR Code deleted successfully."

	MsgUnreachable   = "Could not reach the server."
	MsgInvalidFormat = "Invalid data format received from server."

	msgEmptyLink     = "Please enter a link before submitting."
	msgUnknownError  = "An error occurred."
	msgRefreshFailed = "Failed to fetch QR code history."
)

// RemoteClient is the subset of qrapi.Client the controller needs.
type RemoteClient interface {
	ListAll(ctx context.Context) ([]qrapi.Record, error)
	Create(ctx context.Context, link string) (qrapi.Record, error)
	Delete(ctx context.Context, id qrapi.ID) error
}

// Controller is the single capability interface over the collection mirror.
// All methods are safe for concurrent use; overlapping operations are
// last-write-wins on the shared state.
type Controller interface {
	Refresh(ctx context.Context) error
	CreateRecord(ctx context.Context, link string) (qrapi.Record, error)
	Submit(ctx context.Context) (qrapi.Record, error)
	DeleteRecord(ctx context.Context, id qrapi.ID) error
	SetDraft(link string)
	DismissError()
	DismissSuccess()
	State() State
	// Close stops the pending success expiry. The state stays readable.
	Close()
}

// CreateStrategy decides how a created record reaches the mirror.
type CreateStrategy int

const (
	// ReloadAfterCreate re-fetches the collection after a create. If the
	// re-fetch fails the created record is merged instead.
	ReloadAfterCreate CreateStrategy = iota
	// MergeAfterCreate replaces the record with the same id or appends it.
	MergeAfterCreate
)

// Config holds configuration for the controller.
type Config struct {
	SuccessTTL     time.Duration // lifetime of success messages (default: 3s)
	CreateStrategy CreateStrategy
	Logger         *slog.Logger
	// OnChange, when set, receives a snapshot after every state change. It is
	// called without the controller lock held.
	OnChange func(State)
}

// scheduleFunc runs f after d and returns a function that cancels it.
type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type controller struct {
	client     RemoteClient
	successTTL time.Duration
	strategy   CreateStrategy
	logger     *slog.Logger
	onChange   func(State)
	schedule   scheduleFunc

	mu          sync.Mutex
	state       State
	successGen  uint64
	stopSuccess func() bool
}

// New creates a Controller over client with an empty mirror.
func New(client RemoteClient, cfg *Config) Controller {
	return newController(client, cfg)
}

func newController(client RemoteClient, cfg *Config) *controller {
	if cfg == nil {
		cfg = &Config{}
	}

	ttl := cfg.SuccessTTL
	if ttl <= 0 {
		ttl = DefaultSuccessTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &controller{
		client:     client,
		successTTL: ttl,
		strategy:   cfg.CreateStrategy,
		logger:     logger,
		onChange:   cfg.OnChange,
		schedule:   afterFunc,
		state:      State{Records: []qrapi.Record{}},
	}
}

// State returns a deep copy of the current state.
func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Refresh replaces the mirror with the server's collection. On failure the
// mirror is left as it was and LastError is set.
func (c *controller) Refresh(ctx context.Context) error {
	const op = "qrsync.controller.Refresh"

	c.update(func(s *State) {
		s.IsLoading = true
		s.LastError = ""
	})

	recs, err := c.client.ListAll(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "refresh failed", "error", err.Error())
		c.update(func(s *State) {
			s.IsLoading = false
			s.LastError = messageFor(err, msgRefreshFailed)
		})
		return errx.E(op, errx.KindOf(err), err)
	}

	c.update(func(s *State) {
		s.IsLoading = false
		s.Records = cloneRecords(recs)
	})
	return nil
}

// CreateRecord asks the server to create a record for link. A blank link is
// rejected without a network call or state change. Nothing is inserted
// optimistically.
func (c *controller) CreateRecord(ctx context.Context, link string) (qrapi.Record, error) {
	const op = "qrsync.controller.CreateRecord"

	link = strings.TrimSpace(link)
	if link == "" {
		return qrapi.Record{}, errx.E(op, errx.Invalid, errors.New(msgEmptyLink))
	}

	c.update(func(s *State) {
		s.IsSubmitting = true
		s.LastError = ""
		c.clearSuccessLocked()
	})

	rec, err := c.client.Create(ctx, link)
	if err != nil {
		c.logger.WarnContext(ctx, "create failed", "link", link, "error", err.Error())
		c.update(func(s *State) {
			s.IsSubmitting = false
			s.LastError = messageFor(err, msgUnknownError)
		})
		return qrapi.Record{}, errx.E(op, errx.KindOf(err), err)
	}

	records, reloaded := c.reload(ctx)

	c.update(func(s *State) {
		s.IsSubmitting = false
		s.Draft = ""
		if reloaded {
			s.Records = records
		}
		if indexOf(s.Records, rec.ID) < 0 || !reloaded {
			s.Records = merge(s.Records, rec)
		}
		c.setSuccessLocked(MsgSaved)
	})

	c.logger.InfoContext(ctx, "record created", "id", rec.ID.String(), "reloaded", reloaded)
	return rec, nil
}

// reload re-fetches the collection for ReloadAfterCreate. It reports false when
// the strategy is merge or the fetch failed.
func (c *controller) reload(ctx context.Context) ([]qrapi.Record, bool) {
	if c.strategy != ReloadAfterCreate {
		return nil, false
	}

	c.update(func(s *State) { s.IsLoading = true })
	recs, err := c.client.ListAll(ctx)
	c.update(func(s *State) { s.IsLoading = false })

	if err != nil {
		c.logger.WarnContext(ctx, "reload after create failed, merging created record",
			"error", err.Error(),
		)
		return nil, false
	}
	return cloneRecords(recs), true
}

// Submit creates a record from the current draft.
func (c *controller) Submit(ctx context.Context) (qrapi.Record, error) {
	c.mu.Lock()
	draft := c.state.Draft
	c.mu.Unlock()

	return c.CreateRecord(ctx, draft)
}

// DeleteRecord removes id from the mirror before the server answers. If the
// server rejects the delete the mirror is restored to the snapshot taken at
// the start of this call.
func (c *controller) DeleteRecord(ctx context.Context, id qrapi.ID) error {
	const op = "qrsync.controller.DeleteRecord"

	if id == "" {
		return errx.E(op, errx.Invalid, errors.New("id cannot be empty"))
	}

	var snapshot []qrapi.Record
	c.update(func(s *State) {
		snapshot = cloneRecords(s.Records)
		s.Records = without(s.Records, id)
	})

	if err := c.client.Delete(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "delete failed, restoring mirror",
			"id", id.String(),
			"error", err.Error(),
		)
		c.update(func(s *State) {
			s.Records = snapshot
			s.LastError = messageFor(err, msgUnknownError)
		})
		return errx.E(op, errx.KindOf(err), err)
	}

	c.update(func(s *State) {
		c.setSuccessLocked(MsgDeleted)
	})

	c.logger.InfoContext(ctx, "record deleted", "id", id.String())
	return nil
}

func (c *controller) SetDraft(link string) {
	c.update(func(s *State) { s.Draft = link })
}

func (c *controller) DismissError() {
	c.update(func(s *State) { s.LastError = "" })
}

func (c *controller) DismissSuccess() {
	c.update(func(s *State) { c.clearSuccessLocked() })
}

func (c *controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSuccessTimerLocked()
	c.successGen++
}

// update applies fn under the lock and notifies OnChange with the result.
func (c *controller) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	var snap State
	if c.onChange != nil {
		snap = c.state.clone()
	}
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}

// setSuccessLocked sets the success message and arms its expiry. Each message
// gets a new generation; an expiry only clears the generation it was armed for.
func (c *controller) setSuccessLocked(msg string) {
	c.stopSuccessTimerLocked()
	c.successGen++
	gen := c.successGen
	c.state.LastSuccess = msg
	c.stopSuccess = c.schedule(c.successTTL, func() { c.expireSuccess(gen) })
}

func (c *controller) clearSuccessLocked() {
	c.stopSuccessTimerLocked()
	c.successGen++
	c.state.LastSuccess = ""
}

func (c *controller) stopSuccessTimerLocked() {
	if c.stopSuccess != nil {
		c.stopSuccess()
		c.stopSuccess = nil
	}
}

func (c *controller) expireSuccess(gen uint64) {
	c.update(func(s *State) {
		if c.successGen != gen {
			return
		}
		c.stopSuccess = nil
		s.LastSuccess = ""
	})
}

// UserMessage returns the text shown to a user for err. Transport and decoding
// failures get fixed wording; their causes are only meant for logs.
func UserMessage(err error) string {
	switch errx.KindOf(err) {
	case errx.Network:
		return MsgUnreachable
	case errx.Malformed:
		return MsgInvalidFormat
	default:
		return strings.TrimSpace(errx.MessageOf(err))
	}
}

// messageFor returns UserMessage(err), or fallback when it is empty.
func messageFor(err error, fallback string) string {
	if msg := UserMessage(err); msg != "" {
		return msg
	}
	return fallback
}
