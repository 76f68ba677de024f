package notify

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"noticebox/internal/external"
	"noticebox/internal/types"
)

// testLogger records log messages for assertions.
type testLogger struct {
	infos  []string
	warns  []string
	errors []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Info(msg string, args ...any)  { l.infos = append(l.infos, msg) }
func (l *testLogger) Warn(msg string, args ...any)  { l.warns = append(l.warns, msg) }
func (l *testLogger) Error(msg string, args ...any) { l.errors = append(l.errors, msg) }
func (l *testLogger) With(args ...any) types.Logger { return l }

// fixedClock returns a constant time, making CreatedAt assertions exact.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

// captureMetrics records dispatch outcomes per channel/result pair.
type captureMetrics struct {
	dispatches map[string]int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{dispatches: make(map[string]int)}
}

func (m *captureMetrics) RecordDispatch(_ context.Context, channel types.ChannelType, result MetricResult, count int) {
	m.dispatches[string(channel)+"/"+string(result)] += count
}

func (m *captureMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration) {}

// mockNoticeStore implements NoticeStore for testing.
type mockNoticeStore struct {
	batches [][]*types.Notice
	err     error
}

func (s *mockNoticeStore) CreateBatch(_ context.Context, notices []*types.Notice) error {
	s.batches = append(s.batches, notices)
	return s.err
}

// mockMailConnection implements external.MailConnection for testing.
type mockMailConnection struct {
	batches [][]types.MailMessage
	sendErr error
}

func (c *mockMailConnection) SendBatch(_ context.Context, messages []types.MailMessage) (int, error) {
	c.batches = append(c.batches, messages)
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	return len(messages), nil
}

// mockMailBackend implements external.MailBackend for testing.
type mockMailBackend struct {
	name      string
	conn      *mockMailConnection
	openErr   error
	openCount int
	lastOpts  external.BackendOptions
}

func (b *mockMailBackend) Name() string { return b.name }

func (b *mockMailBackend) Open(_ context.Context, opts external.BackendOptions) (external.MailConnection, error) {
	b.openCount++
	b.lastOpts = opts
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.conn, nil
}

// mockBackendSource implements external.BackendSource for testing.
type mockBackendSource struct {
	backend *mockMailBackend
	getErr  error
}

func (s *mockBackendSource) Get(name string) (external.MailBackend, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.backend, nil
}

// testTemplateFS is a minimal preset tree used across handler tests.
func testTemplateFS() fstest.MapFS {
	return fstest.MapFS{
		"noticebox/default/web_subject.html":   {Data: []byte("Notice for {{.User.Name}}")},
		"noticebox/default/web_body.html":      {Data: []byte("<p>Hello {{.User.Name}}</p>")},
		"noticebox/default/email_subject.txt":  {Data: []byte("Notice for {{.User.Name}}\n")},
		"noticebox/default/email_body.txt":     {Data: []byte("Hello {{.User.Name}}\n")},
		"noticebox/welcome/web_subject.html":   {Data: []byte("Welcome!")},
		"noticebox/welcome/web_body.html":      {Data: []byte("<p>Welcome, {{.User.Name}}.</p>")},
		"noticebox/welcome/email_subject.txt":  {Data: []byte("Welcome!\n")},
		"noticebox/welcome/email_body.txt":     {Data: []byte("Welcome, {{.User.Name}}.\n")},
		"custom/special_subject.txt":           {Data: []byte("Special: {{.User.Name}}")},
		"noticebox/default/only_web_body.html": {Data: []byte("web only")},
	}
}

func newTestRenderer() *Renderer {
	return NewRenderer(RendererConfig{FS: testTemplateFS()})
}

func TestTo(t *testing.T) {
	r := types.Recipient{ID: "u1", Email: "u1@example.com"}
	got := To(r)
	if len(got) != 1 {
		t.Fatalf("To() returned %d recipients, want 1", len(got))
	}
	if got[0] != r {
		t.Errorf("To()[0] = %+v, want %+v", got[0], r)
	}
}
