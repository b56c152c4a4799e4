package toolsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/toolchat/internal/history"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/telemetry"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCallTimeout      = 30 * time.Second

	defaultClientName    = "toolchat"
	defaultClientVersion = "dev"
	tracerName           = "github.com/petasbytes/toolchat/internal/toolsession"
)

// Config describes how to reach the tool server.
type Config struct {
	// Command is spawned with Args; the process inherits the environment plus Env.
	Command string
	Args    []string
	Env     map[string]string

	HandshakeTimeout time.Duration // bound for initialize and tools/list
	CallTimeout      time.Duration // bound for each tools/call

	// SerializeOpen makes Open calls wait for each other, for servers that
	// cannot handle concurrent handshakes.
	SerializeOpen bool

	ClientName    string
	ClientVersion string
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ClientName == "" {
		c.ClientName = defaultClientName
	}
	if c.ClientVersion == "" {
		c.ClientVersion = defaultClientVersion
	}
	return c
}

// ServerPath names the server for error messages: the entry-point argument
// when present, the command otherwise.
func (c Config) ServerPath() string {
	if len(c.Args) > 0 {
		return c.Args[0]
	}
	return c.Command
}

// TransportFunc builds a fresh transport for one session.
type TransportFunc func(ctx context.Context) (mcp.Transport, error)

// Manager opens sessions. It holds no live connection itself and is safe for
// concurrent use.
type Manager struct {
	cfg       Config
	transport TransportFunc
	recorder  history.Recorder
	metrics   *metrics.Recorder
	logger    *slog.Logger
	tracer    trace.Tracer

	openMu sync.Mutex
}

type Option func(*Manager)

// WithTransport replaces the stdio command transport.
func WithTransport(fn TransportFunc) Option { return func(m *Manager) { m.transport = fn } }

// WithRecorder forwards every history entry to r.
func WithRecorder(r history.Recorder) Option { return func(m *Manager) { m.recorder = r } }

func WithMetrics(r *metrics.Recorder) Option { return func(m *Manager) { m.metrics = r } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// NewManager returns a manager for cfg. Zero timeouts take the defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{cfg: cfg.withDefaults()}
	m.transport = m.commandTransport
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) commandTransport(context.Context) (mcp.Transport, error) {
	command := strings.TrimSpace(m.cfg.Command)
	if command == "" {
		return nil, ErrEmptyCommand
	}
	// Not CommandContext: the process must outlive the handshake context and
	// is torn down by Session.Close.
	// #nosec G204 -- command comes from operator configuration
	cmd := exec.Command(command, m.cfg.Args...)
	if len(m.cfg.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), m.cfg.Env)
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// mergeEnv appends extra on top of base in a stable order.
func mergeEnv(base []string, extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(base)+len(keys))
	out = append(out, base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// Open spawns or attaches to the tool server and completes the protocol
// handshake within HandshakeTimeout. Failures are *ConnectError; a handshake
// that runs out of time wraps ErrSessionTimeout.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	if m.cfg.SerializeOpen {
		m.openMu.Lock()
		defer m.openMu.Unlock()
	}

	id := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "toolsession.open", trace.WithAttributes(
		attribute.String("session_id", id),
		attribute.String("server", m.cfg.ServerPath()),
	))
	defer span.End()

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	fail := func(cause error) (*Session, error) {
		err := &ConnectError{ServerPath: m.cfg.ServerPath(), Cause: cause}
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		m.logger.Error("tool session open failed", "session_id", id, "server", m.cfg.ServerPath(), "error", cause)
		return nil, err
	}

	built, err := m.transport(hctx)
	if err != nil {
		return fail(fmt.Errorf("build transport: %w", err))
	}
	transport := &trackedTransport{Transport: built}

	client := mcp.NewClient(&mcp.Implementation{Name: m.cfg.ClientName, Version: m.cfg.ClientVersion}, nil)
	cs, err := client.Connect(hctx, transport, nil)
	if err != nil {
		if cs != nil {
			_ = cs.Close()
		} else {
			// Connect can fail after the connection is up (for example on a
			// protocol version mismatch) without closing it.
			transport.release()
		}
		return fail(boundedCause("initialize", ctx, hctx, err))
	}

	elapsed := time.Since(start)
	m.logger.Info("tool session opened", "session_id", id, "server", m.cfg.ServerPath(), "elapsed", elapsed)
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	telemetry.Emit("session_opened", map[string]any{
		"turn_id":     turnID,
		"session_id":  id,
		"duration_ms": elapsed.Milliseconds(),
	})

	return &Session{
		id:       id,
		cfg:      m.cfg,
		cs:       cs,
		recorder: m.recorder,
		metrics:  m.metrics,
		logger:   m.logger.With("session_id", id),
		tracer:   m.tracer,
	}, nil
}

// trackedTransport keeps the connection it hands to the client so Open can
// release it when the handshake fails.
type trackedTransport struct {
	mcp.Transport

	mu   sync.Mutex
	conn mcp.Connection
}

func (t *trackedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *trackedTransport) release() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// boundedCause maps a failure under a bounded context: the bound running out
// becomes ErrSessionTimeout, caller cancellation stays as is.
func boundedCause(op string, parent, bounded context.Context, err error) error {
	if parent.Err() == nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrSessionTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
