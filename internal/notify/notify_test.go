package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/tradebot/internal/logging"
	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

type stubPayload string

func (p stubPayload) IsEmpty() bool { return p == "" }
func (p stubPayload) Label() string { return string(p) }

type fakeRecorder struct {
	mu     sync.Mutex
	events []*model.HistoryEvent
	err    error
	ctxErr error
}

func (r *fakeRecorder) RecordEvent(ctx context.Context, ev *model.HistoryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxErr = ctx.Err()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

// countingNotifier counts calls per event.
type countingNotifier struct {
	counts map[string]int
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{counts: map[string]int{}}
}

func (c *countingNotifier) OnInitialize(context.Context, *request.Request) {
	c.counts[EventInitialize]++
}

func (c *countingNotifier) OnSearching(context.Context, *request.Request) {
	c.counts[EventSearching]++
}

func (c *countingNotifier) OnCanceled(context.Context, *request.Request, model.Result) {
	c.counts[EventCanceled]++
}

func (c *countingNotifier) OnFinished(context.Context, *request.Request, request.Payload) {
	c.counts[EventFinished]++
}

func (c *countingNotifier) OnMessage(context.Context, *request.Request, string) {
	c.counts[EventMessage]++
}

func newRequest(n request.Notifier) *request.Request {
	return request.New(stubPayload("Eevee"), request.Identity{ID: "u1", Name: "ash"}, n, request.KindLink,
		request.WithCode(4242), request.WithLogger(logging.Discard()))
}

func TestLogNotifier_WritesStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewWithWriter(slog.LevelDebug, "json", &buf))
	req := newRequest(n)
	ctx := request.WithRoutine(context.Background(), "routine-2")

	req.NotifyInitialize(ctx)
	req.NotifyCanceled(ctx, model.ResultNoPartner)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "initialize", first["event"])
	assert.Equal(t, "ash", first["requester"])
	assert.Equal(t, "link", first["kind"])
	assert.Equal(t, "routine-2", first["routine"])
	assert.Equal(t, "Eevee", first["payload"])
	assert.EqualValues(t, 4242, first["code"])

	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "NO_PARTNER", second["reason"])
}

func TestStoreNotifier_RecordsEveryEvent(t *testing.T) {
	rec := &fakeRecorder{}
	n := NewStoreNotifier(rec, logging.Discard())
	req := newRequest(n)
	ctx := request.WithRoutine(context.Background(), "routine-0")

	req.NotifyInitialize(ctx)
	req.NotifySearching(ctx)
	req.NotifyMessage(ctx, "waiting for partner")
	req.NotifyFinished(ctx, stubPayload("Vaporeon"))

	require.Len(t, rec.events, 4)
	var names []string
	for _, ev := range rec.events {
		names = append(names, ev.Event)
		assert.Equal(t, "u1", ev.RequesterID)
		assert.Equal(t, "ash", ev.RequesterName)
		assert.Equal(t, "link", ev.Kind)
		assert.Equal(t, 4242, ev.Code)
		assert.Equal(t, "Eevee", ev.Payload)
		assert.Equal(t, "routine-0", ev.Routine)
	}
	assert.Equal(t, []string{EventInitialize, EventSearching, EventMessage, EventFinished}, names)
	assert.Equal(t, "waiting for partner", rec.events[2].Detail)
	assert.Equal(t, "Vaporeon", rec.events[3].Detail)
}

func TestStoreNotifier_IgnoresCallerCancellation(t *testing.T) {
	rec := &fakeRecorder{}
	n := NewStoreNotifier(rec, logging.Discard())
	req := newRequest(n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NotifyCanceled(ctx, model.ResultRoutineStopped)

	require.Len(t, rec.events, 1)
	assert.NoError(t, rec.ctxErr)
	assert.Equal(t, "ROUTINE_STOPPED", rec.events[0].Detail)
}

func TestStoreNotifier_SwallowsWriteErrors(t *testing.T) {
	var buf bytes.Buffer
	rec := &fakeRecorder{err: errors.New("disk full")}
	n := NewStoreNotifier(rec, logging.NewWithWriter(slog.LevelDebug, "text", &buf))
	req := newRequest(n)

	assert.NotPanics(t, func() { req.NotifySearching(context.Background()) })
	assert.Contains(t, buf.String(), "record event failed")
	assert.Contains(t, buf.String(), "disk full")
}

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := newCountingNotifier(), newCountingNotifier()
	req := newRequest(Multi{a, b})
	ctx := context.Background()

	req.NotifyInitialize(ctx)
	req.NotifySearching(ctx)
	req.NotifyCanceled(ctx, model.ResultUserCanceled)
	req.NotifyFinished(ctx, nil)
	req.NotifyMessage(ctx, "hi")

	for _, c := range []*countingNotifier{a, b} {
		for _, ev := range []string{EventInitialize, EventSearching, EventCanceled, EventFinished, EventMessage} {
			assert.Equal(t, 1, c.counts[ev], ev)
		}
	}
}
