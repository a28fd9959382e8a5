package playback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/httpgateway"
	"github.com/kar10s/airtwitch/internal/metrics"
	dto "github.com/prometheus/client_model/go"
)

type receivedCommand struct {
	Path        string
	Body        string
	UserAgent   string
	ContentType string
}

// commandCount reads airtwitch_playback_commands_total{command,outcome}
// from the registry; a series never recorded reads as zero.
func commandCount(t *testing.T, m *metrics.Metrics, command, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "airtwitch_playback_commands_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabels(metric, map[string]string{"command": command, "outcome": outcome}) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	if len(metric.GetLabel()) != len(want) {
		return false
	}
	for _, pair := range metric.GetLabel() {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

// fakeReceiver is an AirPlay control endpoint with scripted status codes.
type fakeReceiver struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	commands   []receivedCommand
	playStatus int
	stopStatus int
}

func newFakeReceiver(t *testing.T) *fakeReceiver {
	t.Helper()
	r := &fakeReceiver{t: t, playStatus: http.StatusOK, stopStatus: http.StatusOK}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeReceiver) serve(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.commands = append(r.commands, receivedCommand{
		Path:        req.URL.Path,
		Body:        string(body),
		UserAgent:   req.Header.Get("User-Agent"),
		ContentType: req.Header.Get("Content-Type"),
	})
	switch req.URL.Path {
	case playPath:
		w.WriteHeader(r.playStatus)
	case stopPath:
		w.WriteHeader(r.stopStatus)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (r *fakeReceiver) setStatus(play, stop int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playStatus = play
	r.stopStatus = stop
}

func (r *fakeReceiver) received() []receivedCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedCommand(nil), r.commands...)
}

func (r *fakeReceiver) device(name string) domain.DeviceRecord {
	u, err := url.Parse(r.server.URL)
	if err != nil {
		r.t.Fatalf("parse server url: %v", err)
	}
	host, portText, err := net.SplitHostPort(u.Host)
	if err != nil {
		r.t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portText)
	return domain.DeviceRecord{
		Key:           name + "._airplay._tcp.local.",
		Name:          name,
		QualifiedName: name + "._airplay._tcp.local.",
		IPv4:          []net.IP{net.ParseIP(host)},
		Port:          port,
	}
}

type fakeDoer struct {
	calls int
	err   error
}

func (f *fakeDoer) Do(context.Context, httpgateway.Request) (*httpgateway.Response, error) {
	f.calls++
	return nil, f.err
}

var variant = domain.LiveStreamVariant{Title: "chunked", URI: "https://video.example/hls/chunked/index-live.m3u8"}

func newTestController(m *metrics.Metrics) *Controller {
	c := NewController(Config{Metrics: m})
	c.newID = func() string { return "session-1" }
	c.now = func() time.Time { return time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC) }
	return c
}

func TestPlaySendsCommandAndEntersPlaying(t *testing.T) {
	receiver := newFakeReceiver(t)
	m := metrics.New()
	c := newTestController(m)
	device := receiver.device("Living Room")

	sess, err := c.Play(context.Background(), device, variant)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if sess.ID != "session-1" || sess.ContentURI != variant.URI || sess.Device.Key != device.Key {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.State != domain.StatePlaying || c.State() != domain.StatePlaying {
		t.Fatalf("expected playing, got session=%s controller=%s", sess.State, c.State())
	}

	cmds := receiver.received()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	want := "Content-Location: " + variant.URI + "\nStart-Position: 0.0\n"
	if cmds[0].Path != "/play" || cmds[0].Body != want {
		t.Fatalf("unexpected play command: %+v", cmds[0])
	}
	if cmds[0].UserAgent != UserAgent {
		t.Fatalf("unexpected user agent %q", cmds[0].UserAgent)
	}
	if got := commandCount(t, m, "play", metrics.OutcomeOK); got != 1 {
		t.Fatalf("expected play ok counter 1, got %v", got)
	}
}

func TestPlayWhilePlayingStopsPreviousSessionFirst(t *testing.T) {
	first := newFakeReceiver(t)
	second := newFakeReceiver(t)
	first.setStatus(http.StatusOK, http.StatusInternalServerError)
	c := newTestController(nil)

	if _, err := c.Play(context.Background(), first.device("Living Room"), variant); err != nil {
		t.Fatalf("first play: %v", err)
	}
	c.newID = func() string { return "session-2" }

	sess, err := c.Play(context.Background(), second.device("Bedroom"), variant)
	if err != nil {
		t.Fatalf("second play: %v", err)
	}

	firstCmds := first.received()
	if len(firstCmds) != 2 || firstCmds[0].Path != "/play" || firstCmds[1].Path != "/stop" {
		t.Fatalf("expected play then stop on first receiver, got %+v", firstCmds)
	}
	if firstCmds[1].Body != "" {
		t.Fatalf("expected empty stop body, got %q", firstCmds[1].Body)
	}
	if len(second.received()) != 1 {
		t.Fatalf("expected play on second receiver, got %+v", second.received())
	}
	if sess.ID != "session-2" || sess.Device.Name != "Bedroom" {
		t.Fatalf("unexpected session after replacement: %+v", sess)
	}
	if c.State() != domain.StatePlaying {
		t.Fatalf("expected playing, got %s", c.State())
	}
	if got := c.Session(); got == nil || got.Device.Name != "Bedroom" {
		t.Fatalf("controller not bound to new target: %+v", got)
	}
}

func TestStopWhileIdleSendsNothing(t *testing.T) {
	doer := &fakeDoer{}
	c := newController(doer, Config{})

	c.Stop(context.Background())

	if doer.calls != 0 {
		t.Fatalf("expected no request, got %d", doer.calls)
	}
	if c.State() != domain.StateIdle || c.Session() != nil {
		t.Fatalf("expected idle without session, got %s %+v", c.State(), c.Session())
	}
}

func TestPlayRejectedLeavesIdleWithPlaybackError(t *testing.T) {
	receiver := newFakeReceiver(t)
	receiver.setStatus(http.StatusInternalServerError, http.StatusOK)
	m := metrics.New()
	c := newTestController(m)

	sess, err := c.Play(context.Background(), receiver.device("Living Room"), variant)
	if err == nil {
		t.Fatal("expected error")
	}
	if sess != nil {
		t.Fatalf("expected no session, got %+v", sess)
	}
	if !errors.Is(err, domain.ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
	if status := domain.StatusOf(err); status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", status)
	}
	if c.State() != domain.StateIdle || c.Session() != nil {
		t.Fatalf("expected idle, got %s", c.State())
	}
	if got := commandCount(t, m, "play", metrics.OutcomeHTTPError); got != 1 {
		t.Fatalf("expected play http_error counter 1, got %v", got)
	}
}

func TestPlayTransportFailureLeavesIdle(t *testing.T) {
	doer := &fakeDoer{err: domain.NewError(domain.ErrTransport, "POST /play", errors.New("connection refused"))}
	c := newController(doer, Config{})
	device := domain.DeviceRecord{Key: "tv", IPv4: []net.IP{net.ParseIP("192.0.2.10")}, Port: 7000}

	_, err := c.Play(context.Background(), device, variant)
	if !errors.Is(err, domain.ErrPlayback) || !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected playback and transport kinds, got %v", err)
	}
	if c.State() != domain.StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestStopRejectedStillEndsIdle(t *testing.T) {
	receiver := newFakeReceiver(t)
	receiver.setStatus(http.StatusOK, http.StatusInternalServerError)
	m := metrics.New()
	c := newTestController(m)

	if _, err := c.Play(context.Background(), receiver.device("Living Room"), variant); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.Stop(context.Background())

	if c.State() != domain.StateIdle || c.Session() != nil {
		t.Fatalf("expected idle after failed stop, got %s", c.State())
	}
	if got := len(receiver.received()); got != 2 {
		t.Fatalf("expected exactly one stop attempt, got %d commands", got)
	}
	if got := commandCount(t, m, "stop", metrics.OutcomeHTTPError); got != 1 {
		t.Fatalf("expected stop http_error counter 1, got %v", got)
	}
}

func TestPlayRejectsDeviceWithoutIPv4(t *testing.T) {
	doer := &fakeDoer{}
	c := newController(doer, Config{})

	_, err := c.Play(context.Background(), domain.DeviceRecord{Key: "v6-only", Port: 7000}, variant)
	if !errors.Is(err, domain.ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
	if doer.calls != 0 {
		t.Fatalf("expected no request, got %d", doer.calls)
	}
}

func TestCloseStopsSessionAndRefusesPlay(t *testing.T) {
	receiver := newFakeReceiver(t)
	c := newTestController(nil)
	device := receiver.device("Living Room")

	if _, err := c.Play(context.Background(), device, variant); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.Close(context.Background())
	c.Close(context.Background())

	cmds := receiver.received()
	if len(cmds) != 2 || cmds[1].Path != "/stop" {
		t.Fatalf("expected a single stop on close, got %+v", cmds)
	}
	if _, err := c.Play(context.Background(), device, variant); !errors.Is(err, domain.ErrPlayback) {
		t.Fatalf("expected ErrPlayback after close, got %v", err)
	}
}
