package adapters

import (
	"context"
	"net"

	"github.com/kar10s/airtwitch/internal/httpgateway"
	"github.com/kar10s/airtwitch/internal/manifest"
)

// ServiceEvent is one resolved service instance as reported by the
// discovery subsystem.
type ServiceEvent struct {
	Name          string
	QualifiedName string
	IPv4          []net.IP
	IPv6          []net.IP
	Port          int
	Properties    map[string]string
}

// Browser provides LAN service discovery. Browse emits resolution events
// until ctx is done and must not send on events after it returns.
type Browser interface {
	Browse(ctx context.Context, serviceType string, events chan<- ServiceEvent) error
}

// HTTPDoer executes one HTTP exchange. Non-2xx is a result, not an error.
type HTTPDoer interface {
	Do(ctx context.Context, req httpgateway.Request) (*httpgateway.Response, error)
}

// ManifestParser turns a playlist document into ordered tracks.
type ManifestParser interface {
	ParseWithBase(body []byte, declaredCharset, base string) ([]manifest.Track, error)
}

var (
	_ HTTPDoer       = (*httpgateway.Gateway)(nil)
	_ ManifestParser = (*manifest.Parser)(nil)
)
