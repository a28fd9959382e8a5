// Package playback drives a single AirPlay session on one receiver at a time.
package playback

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/httpgateway"
	"github.com/kar10s/airtwitch/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// UserAgent identifies every command sent to a receiver.
	UserAgent = "MediaControl/1.0"

	playPath      = "/play"
	stopPath      = "/stop"
	startPosition = "0.0"
	maxErrorBody  = 256

	commandPlay = "play"
	commandStop = "stop"
)

type Config struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Controller owns at most one PlaybackSession. Play and Stop are serialized;
// State and Session may be read at any time.
type Controller struct {
	device  adapters.HTTPDoer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	newID   func() string
	now     func() time.Time

	opMu sync.Mutex

	mu      sync.Mutex
	state   domain.PlaybackState
	session *domain.PlaybackSession
	closed  bool
}

func NewController(cfg Config) *Controller {
	headers := http.Header{}
	headers.Set("User-Agent", UserAgent)
	return newController(httpgateway.New(cfg.HTTPClient, headers), cfg)
}

func newController(doer adapters.HTTPDoer, cfg Config) *Controller {
	return &Controller{
		device:  doer,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		newID:   uuid.NewString,
		now:     time.Now,
		state:   domain.StateIdle,
	}
}

// Play starts variant on device. An active session is stopped first and its
// outcome does not affect the new session.
func (c *Controller) Play(ctx context.Context, device domain.DeviceRecord, variant domain.LiveStreamVariant) (*domain.PlaybackSession, error) {
	const op = "play"

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.isClosed() {
		return nil, domain.NewError(domain.ErrPlayback, op, errors.New("controller is closed"))
	}
	uri := strings.TrimSpace(variant.URI)
	if uri == "" {
		return nil, domain.NewError(domain.ErrPlayback, op, errors.New("variant has no URI"))
	}
	baseURL, err := device.BaseURL()
	if err != nil {
		return nil, domain.NewError(domain.ErrPlayback, op, err)
	}

	if prev := c.Session(); prev != nil {
		c.logger.Info().Str("session_id", prev.ID).Msg("playback_replacing_session")
		c.stopSession(ctx, prev)
	}

	c.setState(domain.StateStarting, nil)
	body := "Content-Location: " + uri + "\nStart-Position: " + startPosition + "\n"
	res, err := c.device.Do(ctx, httpgateway.Request{
		Method: http.MethodPost,
		URL:    baseURL + playPath,
		Header: http.Header{"Content-Type": []string{"text/parameters"}},
		Body:   []byte(body),
	})
	if err != nil {
		c.setState(domain.StateIdle, nil)
		c.metrics.ObservePlaybackCommand(commandPlay, metrics.OutcomeTransport)
		c.logger.Error().Err(err).Str("device", device.Key).Msg("playback_start_failed")
		return nil, domain.NewError(domain.ErrPlayback, op, err)
	}
	if !res.OK() {
		c.setState(domain.StateIdle, nil)
		c.metrics.ObservePlaybackCommand(commandPlay, metrics.OutcomeHTTPError)
		c.logger.Error().Int("status", res.StatusCode).Str("device", device.Key).Msg("playback_start_rejected")
		return nil, &domain.Error{
			Kind:   domain.ErrPlayback,
			Op:     op,
			Status: res.StatusCode,
			Body:   truncate(string(res.Body)),
		}
	}
	c.metrics.ObservePlaybackCommand(commandPlay, metrics.OutcomeOK)

	sess := &domain.PlaybackSession{
		ID:         c.newID(),
		Device:     device,
		ContentURI: uri,
		State:      domain.StatePlaying,
		StartedAt:  c.now(),
	}
	c.setState(domain.StatePlaying, sess)
	c.logger.Info().
		Str("session_id", sess.ID).
		Str("device", device.Key).
		Msg("playback_started")

	out := *sess
	return &out, nil
}

// Stop ends the active session. It never fails: a rejected or unreachable
// STOP is logged and the controller returns to Idle anyway. With no session
// nothing is sent.
func (c *Controller) Stop(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if sess := c.Session(); sess != nil {
		c.stopSession(ctx, sess)
	}
}

// Close stops the active session and refuses further Play calls. Repeated
// calls are no-ops.
func (c *Controller) Close(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if sess := c.Session(); sess != nil {
		c.stopSession(ctx, sess)
	}
}

func (c *Controller) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the active session, or nil when idle.
func (c *Controller) Session() *domain.PlaybackSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	out := *c.session
	out.State = c.state
	return &out
}

func (c *Controller) stopSession(ctx context.Context, sess *domain.PlaybackSession) {
	c.setState(domain.StateStopping, c.currentSession())
	defer c.setState(domain.StateIdle, nil)

	baseURL, err := sess.Device.BaseURL()
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("playback_stop_failed")
		return
	}
	res, err := c.device.Do(ctx, httpgateway.Request{
		Method: http.MethodPost,
		URL:    baseURL + stopPath,
	})
	switch {
	case err != nil:
		c.metrics.ObservePlaybackCommand(commandStop, metrics.OutcomeTransport)
		c.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("playback_stop_failed")
	case !res.OK():
		c.metrics.ObservePlaybackCommand(commandStop, metrics.OutcomeHTTPError)
		c.logger.Warn().
			Int("status", res.StatusCode).
			Str("body", truncate(string(res.Body))).
			Str("session_id", sess.ID).
			Msg("playback_stop_rejected")
	default:
		c.metrics.ObservePlaybackCommand(commandStop, metrics.OutcomeOK)
		c.logger.Info().Str("session_id", sess.ID).Msg("playback_stopped")
	}
}

func (c *Controller) setState(state domain.PlaybackState, sess *domain.PlaybackSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.session = sess
	if sess != nil {
		sess.State = state
	}
}

func (c *Controller) currentSession() *domain.PlaybackSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
