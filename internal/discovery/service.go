package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	AirPlayServiceType = "_airplay._tcp.local."

	eventQueueSize     = 16
	waitPollInterval   = 50 * time.Millisecond
	defaultWaitTimeout = 3 * time.Second
	modelPropertyName  = "model"
)

type Config struct {
	ServiceType string
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Event announces a device that was added to the registry. Index is its
// position in List.
type Event struct {
	Device domain.DeviceRecord
	Index  int
}

// Service subscribes a Registry to a Browser. The subscription is made once;
// Close tears it down and may be called any number of times.
type Service struct {
	browser     adapters.Browser
	registry    *Registry
	serviceType string
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	events      chan Event

	startOnce sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewService(browser adapters.Browser, registry *Registry, cfg Config) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if strings.TrimSpace(cfg.ServiceType) == "" {
		cfg.ServiceType = AirPlayServiceType
	}
	return &Service{
		browser:     browser,
		registry:    registry,
		serviceType: cfg.ServiceType,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		events:      make(chan Event, eventQueueSize),
	}
}

// Events delivers newly resolved devices. A slow reader misses events but
// never stalls discovery; the registry stays authoritative. The channel is
// closed by Close.
func (s *Service) Events() <-chan Event {
	return s.events
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Start registers with the discovery subsystem. Only the first call has an
// effect; a Service that was already closed stays closed.
func (s *Service) Start(ctx context.Context) error {
	if s.browser == nil {
		return errors.New("discovery browser is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.startOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}

		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(loopCtx, s.done)
	})
	return nil
}

func (s *Service) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	events := make(chan adapters.ServiceEvent, eventQueueSize)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for ev := range events {
			s.handle(ev)
		}
	}()

	s.logger.Info().Str("service", s.serviceType).Msg("discovery_started")
	err := s.browser.Browse(ctx, s.serviceType, events)
	close(events)
	<-pumped

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("discovery_browse_failed")
		return
	}
	s.logger.Info().Msg("discovery_stopped")
}

func (s *Service) handle(ev adapters.ServiceEvent) {
	rec := RecordFromEvent(ev)
	if !s.registry.OnDeviceResolved(rec) {
		s.logger.Debug().Str("key", rec.Key).Msg("device_duplicate_ignored")
		return
	}
	n := s.registry.Len()
	s.metrics.SetDevicesDiscovered(n)
	select {
	case s.events <- Event{Device: rec, Index: n - 1}:
	default:
		s.logger.Debug().Str("key", rec.Key).Msg("device_event_dropped")
	}
	s.logger.Info().
		Str("key", rec.Key).
		Str("device", rec.String()).
		Msg("device_resolved")
}

// Close unsubscribes and waits for the event pump to drain.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		close(s.events)
	})
	return nil
}

// WaitForDevices blocks until at least min devices are known, the timeout
// elapses or ctx is done, then returns the current snapshot.
func (s *Service) WaitForDevices(ctx context.Context, min int, timeout time.Duration) ([]domain.DeviceRecord, error) {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	if min <= 0 {
		min = 1
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		if s.registry.Len() >= min {
			return s.registry.List(), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return s.registry.List(), nil
		case <-ticker.C:
		}
	}
}

// RecordFromEvent maps a resolution event to a DeviceRecord. The key is the
// lower-cased qualified name; only the model property is kept.
func RecordFromEvent(ev adapters.ServiceEvent) domain.DeviceRecord {
	qualified := strings.TrimSpace(ev.QualifiedName)
	if qualified == "" {
		qualified = strings.TrimSpace(ev.Name)
	}

	return domain.DeviceRecord{
		Key:           strings.ToLower(qualified),
		Name:          strings.TrimSpace(ev.Name),
		QualifiedName: qualified,
		IPv4:          append([]net.IP(nil), ev.IPv4...),
		IPv6:          append([]net.IP(nil), ev.IPv6...),
		Port:          ev.Port,
		Model:         strings.TrimSpace(ev.Properties[modelPropertyName]),
	}
}
