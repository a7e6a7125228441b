// Package dispatch connects the request queue, the distribution pool and
// the external exchange device: a Hub accepts and tracks requests, and a
// Loop runs the routines that drain the queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/pool"
	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/internal/record"
	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

var (
	ErrAlreadyQueued   = errors.New("requester already has a pending request")
	ErrNotQueued       = errors.New("requester has no request")
	ErrInProgress      = errors.New("request is already being processed")
	ErrUnknownPoolItem = fmt.Errorf("%w: no pool item with that key", model.ErrInvalidArgument)
	ErrIneligible      = fmt.Errorf("%w: payload may not be distributed anonymously", model.ErrInvalidArgument)
	ErrInvalidPayload  = fmt.Errorf("%w: invalid payload", model.ErrInvalidArgument)

	// Source file errors name neither the path nor the cause, so a client
	// cannot map the server's file system.
	ErrSourceNotAllowed = fmt.Errorf("%w: source_path must name a file inside the distribution or inbox folder", model.ErrInvalidArgument)
	ErrUnreadableSource = fmt.Errorf("%w: source_path is not a readable record file", ErrInvalidPayload)
)

// maxCode bounds generated exchange codes to four digits.
const maxCode = 10000

// Ticket describes a request to submit. At most one payload source is set;
// with none, link and anonymous requests draw from the pool.
type Ticket struct {
	Requester request.Identity
	Kind      request.Kind
	Tier      queue.Tier
	// Code is the exchange code, or request.RandomCode to let the hub pick.
	Code int

	Record     []byte // raw record bytes
	PoolKey    string // key of a pool item
	SourcePath string // record file inside the pool or inbox folder, relocated once finished
}

// tracked is the latest state of a requester and when it was entered.
type tracked struct {
	state model.RequestState
	since time.Time
}

// Hub owns the request queue and tracks the state of every requester it has
// seen. It is the Notifier bound to each request it creates; events are
// forwarded to the downstream notifier after the state is updated.
type Hub struct {
	queue    *queue.Queue
	pool     *pool.Pool[*record.Record]
	format   *record.Format
	notifier request.Notifier
	cfg      config.DispatchConfig
	logger   *slog.Logger

	mu        sync.Mutex
	states    map[string]tracked
	lastSweep time.Time
	rng       *rand.Rand
	now       func() time.Time
}

// HubOption configures optional Hub fields.
type HubOption func(*Hub)

// WithCodeSource sets the random source used to pick exchange codes.
func WithCodeSource(rng *rand.Rand) HubOption {
	return func(h *Hub) {
		h.rng = rng
	}
}

// WithClock sets the time source used to age out finished requesters.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates a Hub.
func NewHub(q *queue.Queue, p *pool.Pool[*record.Record], format *record.Format, notifier request.Notifier,
	cfg config.DispatchConfig, logger *slog.Logger, opts ...HubOption) *Hub {
	if cfg.StatusRetention <= 0 {
		cfg.StatusRetention = config.DefaultDispatchConfig().StatusRetention
	}
	h := &Hub{
		queue:    q,
		pool:     p,
		format:   format,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "dispatch"),
		states:   make(map[string]tracked),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Queue returns the underlying request queue.
func (h *Hub) Queue() *queue.Queue {
	return h.queue
}

// Pool returns the distribution pool.
func (h *Hub) Pool() *pool.Pool[*record.Record] {
	return h.pool
}

// Submit validates t, resolves its payload and enqueues the request. A
// requester may only have one unfinished request.
func (h *Hub) Submit(ctx context.Context, t Ticket) (*request.Request, error) {
	if err := t.Kind.Validate(); err != nil {
		return nil, err
	}
	if err := t.Tier.Validate(); err != nil {
		return nil, err
	}
	if t.Requester.ID == "" {
		return nil, fmt.Errorf("%w: requester id is required", model.ErrInvalidArgument)
	}

	key := t.Requester.ID
	prev, existed, err := h.reserve(key)
	if err != nil {
		return nil, err
	}

	payload, source, err := h.resolvePayload(t)
	if err != nil {
		h.release(key, prev, existed)
		return nil, err
	}

	opts := []request.Option{request.WithCode(t.Code), request.WithLogger(h.logger)}
	if source != "" && h.cfg.ProcessedFolder != "" {
		opts = append(opts, request.WithRelocation(source, filepath.Join(h.cfg.ProcessedFolder, filepath.Base(source))))
	}
	// A nil *record.Record must not become a non-nil Payload interface.
	var p request.Payload
	if payload != nil {
		p = payload
	}
	req := request.New(p, t.Requester, h, t.Kind, opts...)

	h.mu.Lock()
	defer h.mu.Unlock()

	if req.IsRandomCode() {
		req.SetCode(h.rng.IntN(maxCode))
	}
	h.queue.Enqueue(req, t.Tier)

	h.logger.Info("request queued",
		"requester", t.Requester.Name,
		"kind", t.Kind.String(),
		"tier", t.Tier.String(),
		"position", h.queue.Position(req.Equal),
	)
	return req, nil
}

// reserve marks key as queued before any payload is resolved, so a rejected
// duplicate never draws from the pool. It returns the entry it replaced.
func (h *Hub) reserve(key string) (tracked, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.sweep(now)
	prev, ok := h.states[key]
	if ok && !prev.state.IsTerminal() {
		return prev, ok, ErrAlreadyQueued
	}
	h.states[key] = tracked{state: model.RequestStateQueued, since: now}
	return prev, ok, nil
}

// release undoes a reservation whose payload could not be resolved.
func (h *Hub) release(key string, prev tracked, existed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existed {
		h.states[key] = prev
	} else {
		delete(h.states, key)
	}
}

// sweep forgets requesters that finished or were canceled more than
// StatusRetention ago. It scans at most once per retention period.
// Callers hold h.mu.
func (h *Hub) sweep(now time.Time) {
	if now.Sub(h.lastSweep) < h.cfg.StatusRetention {
		return
	}
	h.lastSweep = now
	for key, tr := range h.states {
		if tr.state.IsTerminal() && now.Sub(tr.since) >= h.cfg.StatusRetention {
			delete(h.states, key)
		}
	}
}

// Distribute queues an anonymous request carrying the next eligible pool item.
func (h *Hub) Distribute(ctx context.Context, requester request.Identity, tier queue.Tier) (*request.Request, error) {
	return h.Submit(ctx, Ticket{
		Requester: requester,
		Kind:      request.KindAnonymous,
		Tier:      tier,
		Code:      request.RandomCode,
	})
}

// resolvePayload returns the request's payload and, for SourcePath tickets,
// the resolved file to relocate once the request finishes.
func (h *Hub) resolvePayload(t Ticket) (*record.Record, string, error) {
	var (
		rec *record.Record
		err error
	)
	switch {
	case t.SourcePath != "":
		path, cerr := h.confine(t.SourcePath)
		if cerr != nil {
			return nil, "", cerr
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			h.logger.Debug("cannot read source file", "path", path, "error", rerr)
			return nil, "", ErrUnreadableSource
		}
		if rec, err = h.decode(data); err != nil {
			h.logger.Debug("source file is not a valid record", "path", path, "error", err)
			return nil, "", ErrUnreadableSource
		}
		return rec, path, nil
	case len(t.Record) > 0:
		rec, err = h.decode(t.Record)
	case t.PoolKey != "":
		var ok bool
		if rec, ok = h.pool.Lookup(t.PoolKey); !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownPoolItem, t.PoolKey)
		}
	case t.Kind == request.KindLink:
		rec, err = h.pool.GetNext()
	case t.Kind == request.KindAnonymous:
		rec, err = h.pool.GetNextEligible()
	}
	if err != nil {
		return nil, "", err
	}
	if rec != nil && t.Kind == request.KindAnonymous && !h.format.Eligible(rec) {
		return nil, "", ErrIneligible
	}
	return rec, "", nil
}

// confine resolves symlinks in path and returns the result only when it
// lies strictly inside the pool folder or the inbox folder. Missing files
// are reported the same way as files outside those folders.
func (h *Hub) confine(path string) (string, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return "", ErrSourceNotAllowed
	}
	for _, root := range []string{h.pool.Folder(), h.cfg.InboxFolder} {
		if root == "" {
			continue
		}
		base, err := resolvePath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, resolved)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return resolved, nil
	}
	return "", ErrSourceNotAllowed
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (h *Hub) decode(data []byte) (*record.Record, error) {
	rec, err := h.format.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if h.format.IsEmpty(rec) {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidPayload)
	}
	if err := h.format.Validate(rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return rec, nil
}

// Cancel removes the requester's queued request. Requests already picked
// up by a routine cannot be canceled.
func (h *Hub) Cancel(ctx context.Context, who request.Identity) error {
	req, ok := h.queue.Remove(func(r *request.Request) bool { return r.Requester().Equal(who) })
	if ok {
		req.NotifyCanceled(ctx, model.ResultUserCanceled)
		return nil
	}

	h.mu.Lock()
	tr, known := h.states[who.ID]
	h.mu.Unlock()
	if known && !tr.state.IsTerminal() {
		return ErrInProgress
	}
	return ErrNotQueued
}

// CancelAll cancels every queued request and returns how many there were.
func (h *Hub) CancelAll(ctx context.Context) int {
	n := 0
	for {
		req, ok := h.queue.TryDequeue()
		if !ok {
			return n
		}
		req.NotifyCanceled(ctx, model.ResultUserCanceled)
		n++
	}
}

// Status reports the requester's latest request state and, while queued,
// its 1-based position.
func (h *Hub) Status(who request.Identity) (model.QueueStatus, error) {
	h.mu.Lock()
	tr, ok := h.states[who.ID]
	h.mu.Unlock()
	if !ok {
		return model.QueueStatus{}, ErrNotQueued
	}

	st := model.QueueStatus{
		Requester: model.Requester{ID: who.ID, Name: who.Name},
		State:     tr.state,
		Total:     h.queue.Count(),
	}
	if req, found := h.queue.Find(func(r *request.Request) bool { return r.Requester().Equal(who) }); found {
		st.Requester.Name = req.Requester().Name
		st.Position = h.queue.Position(req.Equal)
	}
	return st, nil
}

// Entries lists the pending requests in dequeue order.
func (h *Hub) Entries() []model.QueueEntry {
	reqs := h.queue.Snapshot()
	out := make([]model.QueueEntry, 0, len(reqs))
	for i, req := range reqs {
		who := req.Requester()
		e := model.QueueEntry{
			Position:  i + 1,
			Requester: model.Requester{ID: who.ID, Name: who.Name},
			Kind:      req.Kind().String(),
			Summary:   req.Describe(i + 1),
		}
		if p := req.Payload(); p != nil && !p.IsEmpty() {
			e.Payload = p.Label()
		}
		out = append(out, e)
	}
	return out
}

func (h *Hub) transition(req *request.Request, next model.RequestState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.states[req.Key()].state
	if !cur.CanTransitionTo(next) {
		err := &model.InvalidTransitionError{RequesterID: req.Key(), From: cur, To: next}
		h.logger.Warn("ignoring state change", "error", err)
		return
	}
	h.states[req.Key()] = tracked{state: next, since: h.now()}
}

func (h *Hub) OnInitialize(ctx context.Context, req *request.Request) {
	h.transition(req, model.RequestStateInitializing)
	h.notifier.OnInitialize(ctx, req)
}

func (h *Hub) OnSearching(ctx context.Context, req *request.Request) {
	h.transition(req, model.RequestStateSearching)
	h.notifier.OnSearching(ctx, req)
}

func (h *Hub) OnCanceled(ctx context.Context, req *request.Request, reason model.Result) {
	h.transition(req, model.RequestStateCanceled)
	h.notifier.OnCanceled(ctx, req, reason)
}

func (h *Hub) OnFinished(ctx context.Context, req *request.Request, result request.Payload) {
	h.transition(req, model.RequestStateFinished)
	h.notifier.OnFinished(ctx, req, result)
}

func (h *Hub) OnMessage(ctx context.Context, req *request.Request, text string) {
	h.notifier.OnMessage(ctx, req, text)
}
