package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/dispatch"
	"github.com/me/tradebot/internal/notify"
	"github.com/me/tradebot/internal/pool"
	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/internal/record"
	"github.com/me/tradebot/internal/server"
	"github.com/me/tradebot/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeRecord(t *testing.T, dir, name string, rec record.Record) string {
	t.Helper()
	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	path := filepath.Join(dir, name+".pk")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// poolFolder creates a folder with one eligible and one gift record.
func poolFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeRecord(t, dir, "eevee", record.Record{Species: 133, Level: 5, Nickname: "Eevee"})
	writeRecord(t, dir, "gift", record.Record{Species: 151, Level: 10, Ribbons: record.RibbonBirthday})
	return dir
}

// startTestServer starts a server with an in-memory SQLite store and returns the URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	logger := quietLogger()

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	format := record.NewFormat(nil)
	p := pool.New[*record.Record](format, config.PoolConfig{DistributeFolder: poolFolder(t)}, logger)
	p.Reload()

	hub := dispatch.NewHub(queue.New(), p, format, notify.NewStoreNotifier(st, logger),
		config.DefaultDispatchConfig(), logger)
	srv := server.New(config.DefaultServerConfig(), hub, st, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\noutput: %s", args, err, out)
	}
	return out
}

func expectContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestSubmitCommand(t *testing.T) {
	url := startTestServer(t)

	out := mustRun(t, "--server", url, "submit", "--id", "u1", "--name", "ash", "--pool-key", "eevee", "--tier", "2")
	expectContains(t, out, "Request queued for ash (u1)", "Kind:     link", "Payload:  Eevee", "Position: 1")

	out, err := runCLI(t, "--server", url, "submit", "--id", "u1", "--kind", "clone")
	if err == nil {
		t.Fatalf("duplicate submit succeeded: %s", out)
	}
	if !strings.Contains(err.Error(), "CONFLICT") {
		t.Errorf("error = %v, want CONFLICT", err)
	}
}

func TestSubmitCommand_RecordFile(t *testing.T) {
	url := startTestServer(t)
	path := writeRecord(t, t.TempDir(), "upload", record.Record{Species: 25, Level: 9, Nickname: "Sparky"})

	out := mustRun(t, "--server", url, "submit", "--id", "u1", "--record", path, "--code", "42")
	expectContains(t, out, "Payload:  Sparky", "Code:     0042")
}

func TestSubmitCommand_Validation(t *testing.T) {
	url := startTestServer(t)

	if _, err := runCLI(t, "--server", url, "submit", "--name", "ash"); err == nil {
		t.Error("submit without --id succeeded")
	}
	if _, err := runCLI(t, "--server", url, "submit", "--id", "u1", "--tier", "9"); err == nil {
		t.Error("submit with tier 9 succeeded")
	}
	if _, err := runCLI(t, "--server", url, "submit", "--id", "u1", "--kind", "steal"); err == nil {
		t.Error("submit with unknown kind succeeded")
	}
}

func TestStatusAndQueueCommands(t *testing.T) {
	url := startTestServer(t)
	mustRun(t, "--server", url, "submit", "--id", "u1", "--name", "ash", "--kind", "clone")
	mustRun(t, "--server", url, "submit", "--id", "u2", "--name", "misty", "--pool-key", "eevee", "--tier", "1")

	out := mustRun(t, "--server", url, "status", "u1")
	expectContains(t, out, "Requester: ash (u1)", "State:    QUEUED", "Position: 2 of 2")

	out = mustRun(t, "--server", url, "queue")
	expectContains(t, out, "01: misty, Eevee  [link]", "02: ash  [clone]", "2 request(s) queued")

	if _, err := runCLI(t, "--server", url, "status", "ghost"); err == nil {
		t.Error("status of unknown requester succeeded")
	}
}

func TestQueueCommand_Empty(t *testing.T) {
	url := startTestServer(t)
	out := mustRun(t, "--server", url, "queue")
	expectContains(t, out, "Queue is empty.")
}

func TestCancelCommands(t *testing.T) {
	url := startTestServer(t)
	mustRun(t, "--server", url, "submit", "--id", "u1", "--kind", "clone")
	mustRun(t, "--server", url, "submit", "--id", "u2", "--kind", "dump")
	mustRun(t, "--server", url, "submit", "--id", "u3", "--kind", "dump")

	out := mustRun(t, "--server", url, "cancel", "u1")
	expectContains(t, out, "Request of u1: CANCELED")

	out = mustRun(t, "--server", url, "cancel", "--all")
	expectContains(t, out, "Canceled 2 queued request(s)")

	if _, err := runCLI(t, "--server", url, "cancel"); err == nil {
		t.Error("cancel without an ID succeeded")
	}
}

func TestWatchCommand_TerminalRequest(t *testing.T) {
	url := startTestServer(t)
	mustRun(t, "--server", url, "submit", "--id", "u1", "--kind", "clone")
	mustRun(t, "--server", url, "cancel", "u1")

	out := mustRun(t, "--server", url, "watch", "u1")
	expectContains(t, out, "CANCELED")

	if _, err := runCLI(t, "--server", url, "watch", "ghost"); err == nil {
		t.Error("watch of unknown requester succeeded")
	}
}

func TestHistoryCommand(t *testing.T) {
	url := startTestServer(t)

	out := mustRun(t, "--server", url, "history")
	expectContains(t, out, "No events found.")

	mustRun(t, "--server", url, "submit", "--id", "u1", "--name", "ash", "--kind", "clone")
	mustRun(t, "--server", url, "cancel", "u1")

	out = mustRun(t, "--server", url, "history", "--requester", "u1")
	expectContains(t, out, "EVENT", "ash", "canceled", "USER_CANCELED")
}

func TestPoolCommands(t *testing.T) {
	url := startTestServer(t)

	out := mustRun(t, "--server", url, "pool", "info")
	expectContains(t, out, "Items:    2", "Keys:     eevee, gift")

	out = mustRun(t, "--server", url, "pool", "reload")
	expectContains(t, out, "Items:    2")

	out = mustRun(t, "--server", url, "pool", "show", "gift")
	expectContains(t, out, "gift: #151", "anonymous: false", "species: 151")

	out = mustRun(t, "--server", url, "pool", "next", "--id", "u9", "--tier", "3")
	expectContains(t, out, "Distributing Eevee to u9")

	if _, err := runCLI(t, "--server", url, "pool", "show", "missing"); err == nil {
		t.Error("pool show of a missing key succeeded")
	}
}

func TestPoolInspectCommand(t *testing.T) {
	dir := poolFolder(t)
	writeRecord(t, dir, "bad", record.Record{Species: 4000, Level: 1})

	out := mustRun(t, "pool", "inspect", dir)
	expectContains(t, out, "KEY", "eevee", "gift", "2 record(s), 1 eligible for anonymous distribution")
	if strings.Contains(out, "bad ") {
		t.Errorf("illegal record listed: %s", out)
	}

	out = mustRun(t, "pool", "inspect", dir, "--rule", "level >= 6")
	expectContains(t, out, "1 record(s), 0 eligible")

	out = mustRun(t, "pool", "inspect", t.TempDir())
	expectContains(t, out, "No valid records")
}
