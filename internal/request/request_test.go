package request

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/tradebot/pkg/model"
)

type stubPayload struct {
	label string
}

func (p stubPayload) IsEmpty() bool { return p.label == "" }
func (p stubPayload) Label() string { return p.label }

type call struct {
	event   string
	routine string
	req     *Request
	detail  string
}

// recordingNotifier captures notifications in order. onFinished, when set,
// runs inside OnFinished so tests can inspect state at notification time.
type recordingNotifier struct {
	mu         sync.Mutex
	calls      []call
	onFinished func()
}

func (n *recordingNotifier) add(ctx context.Context, event string, req *Request, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{event: event, routine: RoutineFromContext(ctx), req: req, detail: detail})
}

func (n *recordingNotifier) OnInitialize(ctx context.Context, req *Request) {
	n.add(ctx, "initialize", req, "")
}

func (n *recordingNotifier) OnSearching(ctx context.Context, req *Request) {
	n.add(ctx, "searching", req, "")
}

func (n *recordingNotifier) OnCanceled(ctx context.Context, req *Request, reason model.Result) {
	n.add(ctx, "canceled", req, reason.String())
}

func (n *recordingNotifier) OnFinished(ctx context.Context, req *Request, result Payload) {
	if n.onFinished != nil {
		n.onFinished()
	}
	n.add(ctx, "finished", req, result.Label())
}

func (n *recordingNotifier) OnMessage(ctx context.Context, req *Request, text string) {
	n.add(ctx, "message", req, text)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Synchronized(t *testing.T) {
	who := Identity{ID: "u1", Name: "Ash"}

	r := New(stubPayload{"Pikachu"}, who, &recordingNotifier{}, KindLink)
	assert.Equal(t, RandomCode, r.Code())
	assert.True(t, r.Synchronized())
	assert.True(t, r.IsRandomCode())

	r = New(stubPayload{"Pikachu"}, who, &recordingNotifier{}, KindLink, WithCode(1234))
	assert.Equal(t, 1234, r.Code())
	assert.False(t, r.Synchronized())
}

func TestSetCode_KeepsSynchronizedFlag(t *testing.T) {
	r := New(stubPayload{"Eevee"}, Identity{ID: "u1", Name: "Ash"}, &recordingNotifier{}, KindClone)
	r.SetCode(5555)
	assert.Equal(t, 5555, r.Code())
	assert.True(t, r.Synchronized(), "synchronized is fixed at construction")
	assert.Equal(t, "Ash - 5555", r.String())
}

func TestEqual_ByRequesterOnly(t *testing.T) {
	n := &recordingNotifier{}
	a := New(stubPayload{"Pikachu"}, Identity{ID: "u1", Name: "Ash"}, n, KindLink, WithCode(1))
	b := New(stubPayload{"Mewtwo"}, Identity{ID: "u1", Name: "Ash K."}, n, KindDump, WithCode(2))
	c := New(stubPayload{"Pikachu"}, Identity{ID: "u2", Name: "Ash"}, n, KindLink, WithCode(1))

	assert.True(t, a.Equal(b), "same requester with different payload/code/kind must be equal")
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c), "distinct requesters with identical payload must differ")
	assert.NotEqual(t, a.Key(), c.Key())
	assert.False(t, a.Equal(nil))
	assert.True(t, a.Equal(a))
}

func TestNotify_ForwardsContextAndRequest(t *testing.T) {
	n := &recordingNotifier{}
	r := New(stubPayload{"Pikachu"}, Identity{ID: "u1", Name: "Ash"}, n, KindLink, WithLogger(quietLogger()))
	ctx := WithRoutine(context.Background(), "bot-1")

	r.NotifyInitialize(ctx)
	r.NotifySearching(ctx)
	r.NotifyMessage(ctx, "partner found")
	r.NotifyCanceled(ctx, model.ResultNoPartner)
	r.NotifyFinished(ctx, stubPayload{"Raichu"})

	require.Len(t, n.calls, 5)
	events := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		events = append(events, c.event)
		assert.Same(t, r, c.req)
		assert.Equal(t, "bot-1", c.routine)
	}
	assert.Equal(t, []string{"initialize", "searching", "message", "canceled", "finished"}, events)
	assert.Equal(t, "partner found", n.calls[2].detail)
	assert.Equal(t, "NO_PARTNER", n.calls[3].detail)
	assert.Equal(t, "Raichu", n.calls[4].detail)
}

func TestNotifyFinished_RelocatesOverExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	doneDir := filepath.Join(dir, "done")
	dst := filepath.Join(doneDir, "a.bin")
	require.NoError(t, os.Mkdir(doneDir, 0o755))
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	n := &recordingNotifier{}
	var srcPresentAtNotify bool
	n.onFinished = func() {
		_, err := os.Stat(src)
		srcPresentAtNotify = err == nil
	}

	r := New(stubPayload{"Pikachu"}, Identity{ID: "u1", Name: "Ash"}, n, KindLink,
		WithRelocation(src, dst), WithLogger(quietLogger()))
	r.NotifyFinished(context.Background(), stubPayload{"Pikachu"})

	assert.True(t, srcPresentAtNotify, "notification must precede relocation")
	_, err := os.Stat(src)
	assert.True(t, errors.Is(err, os.ErrNotExist), "source should be gone")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestNotifyFinished_RelocationPreconditions(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	tests := []struct {
		name string
		src  string
		dst  string
	}{
		{"no paths", "", ""},
		{"missing source file", filepath.Join(dir, "missing.bin"), filepath.Join(dir, "out.bin")},
		{"missing source dir", filepath.Join(dir, "nope", "a.bin"), filepath.Join(dir, "out.bin")},
		{"no destination", src, ""},
		{"missing destination dir", src, filepath.Join(dir, "nope", "a.bin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			r := New(stubPayload{"Pikachu"}, Identity{ID: "u1", Name: "Ash"}, n, KindLink,
				WithRelocation(tt.src, tt.dst), WithLogger(quietLogger()))

			assert.NotPanics(t, func() {
				r.NotifyFinished(context.Background(), stubPayload{"Pikachu"})
			})
			require.Len(t, n.calls, 1)
			assert.Equal(t, "finished", n.calls[0].event)

			_, err := os.Stat(src)
			assert.NoError(t, err, "source must stay in place")
		})
	}
}

func TestDescribe(t *testing.T) {
	n := &recordingNotifier{}
	who := Identity{ID: "u1", Name: "Misty"}

	assert.Equal(t, "03: Misty", New(stubPayload{}, who, n, KindClone).Describe(3))
	assert.Equal(t, "03: Misty", New(nil, who, n, KindClone).Describe(3))
	assert.Equal(t, "12: Misty, Staryu", New(stubPayload{"Staryu"}, who, n, KindLink).Describe(12))
}

func TestKind_ParseAndValidate(t *testing.T) {
	for _, k := range []Kind{KindLink, KindClone, KindDump, KindAnonymous} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
		assert.NoError(t, k.Validate())
	}

	got, err := ParseKind("  CLONE ")
	require.NoError(t, err)
	assert.Equal(t, KindClone, got)

	_, err = ParseKind("teleport")
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	err = Kind(42).Validate()
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestRoutineFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", RoutineFromContext(context.Background()))
}
