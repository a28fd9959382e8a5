package cli

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/kar10s/airtwitch/internal/adapters/mdns"
	"github.com/kar10s/airtwitch/internal/config"
	"github.com/kar10s/airtwitch/internal/discovery"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/history"
	"github.com/kar10s/airtwitch/internal/httpgateway"
	applog "github.com/kar10s/airtwitch/internal/log"
	"github.com/kar10s/airtwitch/internal/manifest"
	"github.com/kar10s/airtwitch/internal/metrics"
	"github.com/kar10s/airtwitch/internal/playback"
	"github.com/kar10s/airtwitch/internal/twitch"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 5 * time.Second

var (
	newBrowser = func(cfg config.Config, logger zerolog.Logger) adapters.Browser {
		return mdns.NewBrowser(mdns.Config{
			Interval: cfg.DiscoveryInterval,
			Logger:   logger,
		})
	}
	twitchAPIBase   = twitch.DefaultAPIBase
	twitchUsherBase = twitch.DefaultUsherBase
)

// app owns the components for one command invocation. Nothing here is a
// process-wide singleton.
type app struct {
	cfg        config.Config
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	discovery  *discovery.Service
	controller *playback.Controller
	history    *history.Store

	client   *twitch.Client
	resolver *twitch.Resolver
}

func newApp(cfg config.Config, fs afero.Fs) *app {
	m := metrics.New()
	httpClient := httpgateway.NewPooledClient()

	return &app{
		cfg:        cfg,
		logger:     applog.WithComponent("cli"),
		metrics:    m,
		httpClient: httpClient,
		discovery: discovery.NewService(
			newBrowser(cfg, applog.WithComponent("mdns")),
			discovery.NewRegistry(),
			discovery.Config{Logger: applog.WithComponent("discovery"), Metrics: m},
		),
		controller: playback.NewController(playback.Config{
			HTTPClient: httpClient,
			Logger:     applog.WithComponent("playback"),
			Metrics:    m,
		}),
		history: history.New(history.Options{
			Path:     cfg.HistoryPath,
			Size:     cfg.HistorySize,
			Autosave: true,
			Fs:       fs,
		}),
	}
}

// twitch builds the platform client on first use. A missing client ID is a
// configuration error and nothing is constructed.
func (a *app) twitch() (*twitch.Client, *twitch.Resolver, error) {
	if a.client != nil {
		return a.client, a.resolver, nil
	}

	clientID, source := twitch.ResolveClientID(a.cfg.ClientID)
	client, err := twitch.NewClient(twitch.Config{
		ClientID:   clientID,
		APIBase:    twitchAPIBase,
		UsherBase:  twitchUsherBase,
		HTTPClient: a.httpClient,
		Logger:     applog.WithComponent("twitch"),
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug().Str("source", string(source)).Msg("client_id_resolved")

	a.client = client
	a.resolver = twitch.NewResolver(client, manifest.New(), applog.WithComponent("resolver"))
	return a.client, a.resolver, nil
}

// run executes body while the metrics endpoint is served, when configured.
func (a *app) run(ctx context.Context, body func(context.Context) error) error {
	if a.cfg.MetricsAddr == "" {
		return body(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("metrics_listening")
		return metrics.Serve(srvCtx, a.cfg.MetricsAddr, a.metrics)
	})
	g.Go(func() error {
		defer stopServer()
		return body(gctx)
	})
	return g.Wait()
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.controller.Close(ctx)
	_ = a.discovery.Close()
}

// findDevices starts discovery and waits until min receivers are known or
// the discovery timeout passes.
func (a *app) findDevices(ctx context.Context, min int) ([]domain.DeviceRecord, error) {
	if err := a.discovery.Start(ctx); err != nil {
		return nil, err
	}
	return a.discovery.WaitForDevices(ctx, min, a.cfg.DiscoveryTimeout)
}

// selectDevice accepts a registry index or a device name.
func (a *app) selectDevice(ctx context.Context, target string) (domain.DeviceRecord, error) {
	target = strings.TrimSpace(target)
	min := 1
	index, indexErr := strconv.Atoi(target)
	if indexErr == nil {
		min = index + 1
	}
	if _, err := a.findDevices(ctx, min); err != nil {
		return domain.DeviceRecord{}, err
	}

	registry := a.discovery.Registry()
	if indexErr == nil {
		return registry.Get(index)
	}
	return registry.Find(target)
}

// holdPlayback keeps the session alive until ctx is done, then stops it.
func (a *app) holdPlayback(ctx context.Context) {
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.controller.Stop(stopCtx)
}

// selectVariant accepts a variant index or title. An empty target picks
// the first variant.
func selectVariant(variants []domain.LiveStreamVariant, target string) (domain.LiveStreamVariant, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		target = "0"
	}
	if index, err := strconv.Atoi(target); err == nil {
		if index < 0 || index >= len(variants) {
			return domain.LiveStreamVariant{}, domain.NewError(domain.ErrNotFound, "select variant", fmt.Errorf("no variant with index %d (have %d)", index, len(variants)))
		}
		return variants[index], nil
	}
	for _, v := range variants {
		if strings.EqualFold(v.Title, target) {
			return v, nil
		}
	}
	return domain.LiveStreamVariant{}, &domain.Error{Kind: domain.ErrNotFound, Op: "select variant " + strconv.Quote(target)}
}
