// Package request defines the unit of work scheduled by the queue: a payload
// offered on behalf of a requester, the notifier that reports its progress,
// and the post-completion relocation of the file it was read from.
package request

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/tradebot/pkg/model"
)

// RandomCode is the code sentinel meaning "no code chosen yet". Requests
// created with it are synchronized: the routine picks the code itself.
const RandomCode = -1

// Payload is the data item exchanged by a request.
type Payload interface {
	// IsEmpty reports whether the payload is an empty slot placeholder.
	IsEmpty() bool
	// Label is a short human-readable name for the payload.
	Label() string
}

// Identity identifies a requester. Two identities are the same requester
// iff their IDs match; Name is display only.
type Identity struct {
	ID   string
	Name string
}

// Equal reports whether both identities refer to the same requester.
func (i Identity) Equal(other Identity) bool {
	return i.ID == other.ID
}

// Request is one pending exchange. All fields except the code are fixed at
// construction.
type Request struct {
	code         int
	payload      Payload
	requester    Identity
	notifier     Notifier
	kind         Kind
	synchronized bool

	sourcePath      string
	destinationPath string

	logger *slog.Logger
}

// Option configures optional Request fields.
type Option func(*Request)

// WithCode sets a caller-chosen exchange code.
func WithCode(code int) Option {
	return func(r *Request) {
		r.code = code
	}
}

// WithRelocation makes NotifyFinished move src to dst once the exchange is
// done.
func WithRelocation(src, dst string) Option {
	return func(r *Request) {
		r.sourcePath = src
		r.destinationPath = dst
	}
}

// WithLogger sets the logger used for relocation messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Request) {
		r.logger = logger
	}
}

// New creates a request. The notifier is bound for the request's lifetime.
func New(payload Payload, requester Identity, notifier Notifier, kind Kind, opts ...Option) *Request {
	r := &Request{
		code:      RandomCode,
		payload:   payload,
		requester: requester,
		notifier:  notifier,
		kind:      kind,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.synchronized = r.code == RandomCode
	r.logger = r.logger.With("component", "request", "requester", requester.Name)
	return r
}

// Code returns the exchange code, or RandomCode.
func (r *Request) Code() int {
	return r.code
}

func (r *Request) Payload() Payload {
	return r.payload
}

func (r *Request) Requester() Identity {
	return r.requester
}

func (r *Request) Kind() Kind {
	return r.kind
}

// Synchronized reports whether the request was created without a code.
func (r *Request) Synchronized() bool {
	return r.synchronized
}

func (r *Request) SourcePath() string {
	return r.sourcePath
}

func (r *Request) DestinationPath() string {
	return r.destinationPath
}

// IsRandomCode reports whether the code is still the RandomCode sentinel.
func (r *Request) IsRandomCode() bool {
	return r.code == RandomCode
}

// SetCode reassigns the exchange code. It must only be called before the
// request is enqueued.
func (r *Request) SetCode(code int) {
	r.code = code
}

// Key is the hash of the request: the requester ID.
func (r *Request) Key() string {
	return r.requester.ID
}

// Equal compares requests by requester identity only. Payload, code and kind
// are ignored.
func (r *Request) Equal(other *Request) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r == other {
		return true
	}
	return r.requester.Equal(other.requester)
}

// NotifyInitialize reports that a routine has picked up the request.
func (r *Request) NotifyInitialize(ctx context.Context) {
	r.notifier.OnInitialize(ctx, r)
}

// NotifySearching reports that the routine is waiting for the partner.
func (r *Request) NotifySearching(ctx context.Context) {
	r.notifier.OnSearching(ctx, r)
}

// NotifyCanceled reports that the exchange will not complete.
func (r *Request) NotifyCanceled(ctx context.Context, reason model.Result) {
	r.notifier.OnCanceled(ctx, r, reason)
}

// NotifyFinished reports completion, then relocates the source file. The
// completion notification is always sent before any relocation attempt.
func (r *Request) NotifyFinished(ctx context.Context, result Payload) {
	r.notifier.OnFinished(ctx, r, result)
	r.relocate(ctx)
}

// NotifyMessage forwards a free-text status update.
func (r *Request) NotifyMessage(ctx context.Context, text string) {
	r.notifier.OnMessage(ctx, r, text)
}

// Describe renders the request as a numbered queue line.
func (r *Request) Describe(index int) string {
	if r.payload == nil || r.payload.IsEmpty() {
		return fmt.Sprintf("%02d: %s", index, r.requester.Name)
	}
	return fmt.Sprintf("%02d: %s, %s", index, r.requester.Name, r.payload.Label())
}

func (r *Request) String() string {
	return fmt.Sprintf("%s - %d", r.requester.Name, r.code)
}
