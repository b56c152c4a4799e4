package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/petasbytes/toolchat/internal/history"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/toolsession"
	"github.com/petasbytes/toolchat/internal/toolsession/toolsessiontest"
	"github.com/petasbytes/toolchat/memory"
	"github.com/petasbytes/toolchat/transcript"
)

type fakeChat struct {
	seen  []*transcript.Transcript
	reply string
	usage metrics.Usage
}

func (f *fakeChat) Chat(_ context.Context, tr *transcript.Transcript) (string, metrics.Usage) {
	f.seen = append(f.seen, tr)
	return f.reply, f.usage
}

func TestSession_HandleAppendsAndPersists(t *testing.T) {
	var saved []memory.Message
	chat := &fakeChat{reply: "4", usage: metrics.Usage{InputTokens: 10, OutputTokens: 2, CacheReadTokens: 7}}
	var out bytes.Buffer
	s := &session{
		chat:      chat,
		out:       &out,
		persisted: []memory.Message{{Role: "user", Text: "earlier"}, {Role: "assistant", Text: "reply"}},
		save:      func(m []memory.Message) error { saved = append([]memory.Message(nil), m...); return nil },
	}

	if !s.handle(context.Background(), "what is 2+2") {
		t.Fatal("loop should continue")
	}
	if len(chat.seen) != 1 || chat.seen[0].Len() != 3 {
		t.Fatalf("chat should see the whole text history plus the new question")
	}
	if last, _ := chat.seen[0].Last(); last.JoinedText() != "what is 2+2" {
		t.Fatalf("last turn = %+v", last)
	}
	if len(saved) != 4 || saved[3].Role != "assistant" || saved[3].Usage == nil || saved[3].Usage.InputTokens != 10 {
		t.Fatalf("saved = %+v", saved)
	}
	if !strings.Contains(out.String(), "Claude") || !strings.Contains(out.String(), "Cache hits: 7") {
		t.Fatalf("output: %q", out.String())
	}
}

func TestSession_FailureReplyHasNoUsage(t *testing.T) {
	chat := &fakeChat{reply: "⏱️ **Rate Limit Exceeded**"}
	s := &session{chat: chat, out: &bytes.Buffer{}}
	s.handle(context.Background(), "hi")
	if len(s.persisted) != 2 || s.persisted[1].Usage != nil {
		t.Fatalf("persisted = %+v", s.persisted)
	}
}

func TestSession_Commands(t *testing.T) {
	chat := &fakeChat{}
	var out bytes.Buffer
	s := &session{chat: chat, out: &out, persisted: []memory.Message{
		{Role: "assistant", Text: "x", Usage: &metrics.Usage{InputTokens: 3, OutputTokens: 4}},
	}}

	if !s.handle(context.Background(), "/stats") || !strings.Contains(out.String(), "total 7") {
		t.Fatalf("/stats output: %q", out.String())
	}
	if !s.handle(context.Background(), "/clear") || s.persisted != nil {
		t.Fatal("/clear should reset the conversation")
	}
	if !s.handle(context.Background(), "") {
		t.Fatal("blank line continues")
	}
	if s.handle(context.Background(), "/exit") {
		t.Fatal("/exit should stop the loop")
	}
	if len(chat.seen) != 0 {
		t.Fatal("commands must not reach the model")
	}
}

func TestSession_LoopStopsAtEOF(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	s := &session{chat: chat, out: &bytes.Buffer{}}
	s.loop(context.Background(), strings.NewReader("one\ntwo\n"))
	if len(chat.seen) != 2 || len(s.persisted) != 4 {
		t.Fatalf("seen=%d persisted=%d", len(chat.seen), len(s.persisted))
	}
}

func TestStatsFrom(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := metrics.NewRecorder(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rec.RecordRound(ctx, metrics.Usage{InputTokens: 10, OutputTokens: 2})
	rec.RecordRound(ctx, metrics.Usage{InputTokens: 5, OutputTokens: 1, CacheReadTokens: 3})
	rec.RecordTool(ctx, "lookup", true, time.Millisecond)
	rec.RecordTool(ctx, "lookup", false, time.Millisecond)
	rec.RecordCall(ctx, metrics.OutcomeOK, time.Second)
	rec.RecordCall(ctx, metrics.OutcomeError, time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	s := statsFrom(&rm)
	want := sessionStats{
		Requests: 2, Failed: 1, Rounds: 2, ToolCalls: 2, ToolFailures: 1,
		Tokens: metrics.Usage{InputTokens: 15, OutputTokens: 3, CacheReadTokens: 3},
	}
	if s != want {
		t.Fatalf("got %+v want %+v", s, want)
	}

	var out bytes.Buffer
	printStats(&out, s)
	if !strings.Contains(out.String(), "Requests:     2 (1 failed)") || !strings.Contains(out.String(), "Tokens:       18") {
		t.Fatalf("printed: %q", out.String())
	}
}

func TestListTools(t *testing.T) {
	server := toolsessiontest.NewServer()
	toolsessiontest.AddTextTool(server, "lookup", "Look up a value\nwith details", toolsessiontest.ObjectSchema(map[string]string{"x": "integer"}, "x"),
		func(context.Context, map[string]any) (string, error) { return "", nil })
	mgr, counters := toolsessiontest.NewManager(t, server, toolsession.Config{})

	var out bytes.Buffer
	if err := listTools(context.Background(), &out, mgr); err != nil {
		t.Fatalf("listTools: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1 tool(s)") || !strings.Contains(got, "lookup") || strings.Contains(got, "with details") {
		t.Fatalf("output: %q", got)
	}
	if counters.Closes.Load() != 1 {
		t.Fatalf("session not closed: %d", counters.Closes.Load())
	}
}

func TestListTools_ConnectionFailure(t *testing.T) {
	mgr := toolsession.NewManager(toolsession.Config{Command: "node", Args: []string{"srv.js"}, HandshakeTimeout: 20 * time.Millisecond},
		toolsession.WithTransport(func(context.Context) (mcp.Transport, error) { return toolsessiontest.StallTransport{}, nil }))

	var out bytes.Buffer
	err := listTools(context.Background(), &out, mgr)
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != exitRuntime {
		t.Fatalf("want runtime exit error, got %v", err)
	}
	if !strings.HasPrefix(out.String(), "🔧") || !strings.Contains(out.String(), "srv.js") {
		t.Fatalf("output: %q", out.String())
	}
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	if err := printHistory(&out, nil); err != nil || !strings.Contains(out.String(), "No tool calls") {
		t.Fatalf("empty: %q %v", out.String(), err)
	}

	out.Reset()
	err := printHistory(&out, []history.Entry{
		{Time: time.Now(), Tool: "lookup", Arguments: json.RawMessage(`{"x":1}`), Result: "line1\nline2"},
		{Time: time.Now(), Tool: "slow", Result: "Error: Tool call 'slow' timed out", Failed: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "line1 line2") || !strings.Contains(got, "error") || !strings.Contains(got, `{"x":1}`) {
		t.Fatalf("output: %q", got)
	}
}

func TestHistoryCmd_ReadsStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	store, err := history.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), history.Entry{Time: time.Now(), SessionID: "s", Tool: "lookup", Result: "x=1"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	t.Setenv("TOOLCHAT_HISTORY_DB", "")
	cfgPath := filepath.Join(dir, "toolchat.yaml")
	if err := os.WriteFile(cfgPath, []byte("history:\n  path: "+dbPath+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"history", "--config", cfgPath, "--limit", "5"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "lookup") || !strings.Contains(out.String(), "x=1") {
		t.Fatalf("output: %q", out.String())
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	root := NewRootCmd("test")
	if err := root.ParseFlags([]string{"--server", "alt/index.js", "--model", "claude-x", "--verbose"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(root)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Args[0] != "alt/index.js" || cfg.Model != "claude-x" || cfg.LogLevel != "debug" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestRunner_RequiresAPIKey(t *testing.T) {
	a := &app{}
	if _, err := a.runner(); !errors.Is(err, errMissingKey) {
		t.Fatalf("want errMissingKey, got %v", err)
	}
}

func TestConfigShow_RedactsKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-live-123")

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--model", "claude-x"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := out.String()
	if strings.Contains(got, "sk-live-123") || !strings.Contains(got, "<redacted>") {
		t.Fatalf("key leaked or missing: %q", got)
	}
	if !strings.Contains(got, "model: claude-x") || !strings.Contains(got, "handshake_timeout: 10s") {
		t.Fatalf("output: %q", got)
	}
}

func TestConfigSchema(t *testing.T) {
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "schema"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["title"] != "toolchat configuration" {
		t.Fatalf("title = %v", doc["title"])
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd("test")
	for _, name := range []string{"chat", "tools", "history", "config"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("missing subcommand %q: %v", name, err)
		}
	}
}
