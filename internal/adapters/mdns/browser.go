package mdns

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"strconv"
	"strings"
	"time"

	hmdns "github.com/hashicorp/mdns"
	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

const (
	defaultInterval     = 10 * time.Second
	defaultQueryTimeout = 2 * time.Second
	entryQueueSize      = 32
)

// Browser repeatedly queries the LAN for a service type and forwards every
// answer as a ServiceEvent. hashicorp/mdns only offers one-shot queries, so
// continuous discovery is a query loop.
type Browser struct {
	interval     time.Duration
	queryTimeout time.Duration
	logger       zerolog.Logger
	query        func(*hmdns.QueryParam) error
}

type Config struct {
	Interval     time.Duration
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

func NewBrowser(cfg Config) *Browser {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return &Browser{
		interval:     cfg.Interval,
		queryTimeout: cfg.QueryTimeout,
		logger:       cfg.Logger,
		query:        hmdns.Query,
	}
}

func (b *Browser) Browse(ctx context.Context, serviceType string, events chan<- adapters.ServiceEvent) error {
	service, domain, err := splitServiceType(serviceType)
	if err != nil {
		return err
	}
	serviceFQDN := dns.Fqdn(service + "." + domain)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := b.queryOnce(ctx, service, domain, serviceFQDN, events); err != nil {
			b.logger.Warn().Err(err).Str("service", serviceFQDN).Msg("mdns_query_failed")
		}
		timer.Reset(b.interval)
	}
}

func (b *Browser) queryOnce(ctx context.Context, service, domain, serviceFQDN string, events chan<- adapters.ServiceEvent) error {
	entries := make(chan *hmdns.ServiceEntry, entryQueueSize)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		for entry := range entries {
			ev, ok := toEvent(entry, serviceFQDN)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	}()

	err := b.query(&hmdns.QueryParam{
		Service: service,
		Domain:  domain,
		Timeout: b.queryTimeout,
		Entries: entries,
		Logger:  stdlog.New(logWriter{logger: b.logger}, "", 0),
	})
	close(entries)
	<-forwarded
	return err
}

// splitServiceType turns "_airplay._tcp.local." into ("_airplay._tcp", "local").
func splitServiceType(serviceType string) (string, string, error) {
	labels := dns.SplitDomainName(dns.Fqdn(strings.TrimSpace(serviceType)))
	if len(labels) < 3 {
		return "", "", errors.New("service type must look like _service._proto.domain.")
	}
	return strings.Join(labels[:len(labels)-1], "."), labels[len(labels)-1], nil
}

func toEvent(entry *hmdns.ServiceEntry, serviceFQDN string) (adapters.ServiceEvent, bool) {
	if entry == nil || entry.Name == "" {
		return adapters.ServiceEvent{}, false
	}
	qualified := dns.Fqdn(entry.Name)
	if !dns.IsSubDomain(serviceFQDN, qualified) || strings.EqualFold(qualified, serviceFQDN) {
		return adapters.ServiceEvent{}, false
	}

	instance := qualified[:len(qualified)-len(serviceFQDN)-1]
	ev := adapters.ServiceEvent{
		Name:          unescape(instance),
		QualifiedName: unescape(qualified),
		Port:          entry.Port,
		Properties:    parseTXT(entry.InfoFields),
	}
	if v4 := entry.AddrV4.To4(); v4 != nil {
		ev.IPv4 = []net.IP{v4}
	}
	if entry.AddrV6 != nil && entry.AddrV6.To4() == nil {
		ev.IPv6 = []net.IP{entry.AddrV6}
	}
	return ev, true
}

func parseTXT(fields []string) map[string]string {
	props := make(map[string]string, len(fields))
	for _, field := range fields {
		key, value, _ := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, seen := props[key]; seen {
			continue
		}
		props[key] = value
	}
	return props
}

// unescape reverses the presentation-format escapes miekg/dns applies to
// labels ("\ " and "\DDD").
func unescape(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '\\' || i+1 >= len(name) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(name) && isDigit(name[i+1]) && isDigit(name[i+2]) && isDigit(name[i+3]) {
			if n, err := strconv.Atoi(name[i+1 : i+4]); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(name[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// logWriter routes hashicorp/mdns log lines into zerolog, mapping their
// "[ERR]" style prefixes onto levels.
type logWriter struct {
	logger zerolog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	level := zerolog.DebugLevel
	for prefix, lvl := range map[string]zerolog.Level{
		"[ERR]":   zerolog.ErrorLevel,
		"[ERROR]": zerolog.ErrorLevel,
		"[WARN]":  zerolog.WarnLevel,
		"[INFO]":  zerolog.DebugLevel,
		"[DEBUG]": zerolog.DebugLevel,
	} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			line, level = strings.TrimSpace(rest), lvl
			break
		}
	}
	line = strings.TrimPrefix(line, "mdns: ")
	w.logger.WithLevel(level).Str("source", "hashicorp/mdns").Msg(line)
	return len(p), nil
}

var _ adapters.Browser = (*Browser)(nil)
