package twitch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/manifest"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// FallbackVariantTitle names a variant whose URI carries no usable path.
const FallbackVariantTitle = "native"

// PlatformAPI is the subset of the Twitch API the resolver drives.
type PlatformAPI interface {
	SearchChannels(ctx context.Context, query string) ([]domain.Channel, error)
	AccessToken(ctx context.Context, ch domain.Channel) (domain.ChannelToken, error)
	IsLive(ctx context.Context, ch domain.Channel) (bool, error)
	FetchManifest(ctx context.Context, ch domain.Channel, token domain.ChannelToken) (Manifest, error)
}

var _ PlatformAPI = (*Client)(nil)

type Resolver struct {
	api    PlatformAPI
	parser adapters.ManifestParser
	logger zerolog.Logger
}

func NewResolver(api PlatformAPI, parser adapters.ManifestParser, logger zerolog.Logger) *Resolver {
	if parser == nil {
		parser = manifest.New()
	}
	return &Resolver{api: api, parser: parser, logger: logger}
}

func (r *Resolver) Search(ctx context.Context, query string) ([]domain.Channel, error) {
	return r.api.SearchChannels(ctx, query)
}

// ResolveLiveVariants authorizes, checks liveness and fetches the variant
// list for ch, in that order. An offline channel yields an empty list and no
// manifest request. Declared titles win over inferred ones. ch.Live is
// updated as a side effect.
func (r *Resolver) ResolveLiveVariants(ctx context.Context, ch *domain.Channel) ([]domain.LiveStreamVariant, error) {
	token, err := r.api.AccessToken(ctx, *ch)
	if err != nil {
		return nil, err
	}

	live, err := r.api.IsLive(ctx, *ch)
	if err != nil {
		return nil, err
	}
	ch.Live = live
	if !live {
		r.logger.Info().Str("channel", ch.Name).Msg("channel_offline")
		return []domain.LiveStreamVariant{}, nil
	}

	m, err := r.api.FetchManifest(ctx, *ch, token)
	if err != nil {
		return nil, err
	}
	tracks, err := r.parser.ParseWithBase(m.Body, m.Charset, m.URL)
	if err != nil {
		r.logger.Warn().Err(err).Str("channel", ch.Name).Msg("manifest_parse_failed")
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Kind == domain.ErrParse {
			return nil, err
		}
		return nil, domain.NewError(domain.ErrParse, "parse manifest", err)
	}

	variants := lo.Map(tracks, func(t manifest.Track, _ int) domain.LiveStreamVariant {
		title := t.Title
		if title == "" {
			title = InferTitle(t.URI)
		}
		return domain.LiveStreamVariant{Title: title, URI: t.URI}
	})
	r.logger.Info().Str("channel", ch.Name).Int("variants", len(variants)).Msg("variants_resolved")
	return variants, nil
}

// InferTitle names a variant after the second-to-last path segment of its
// URI, so ".../chunked/index-live.m3u8" is "chunked".
func InferTitle(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil {
		path = u.Path
	}
	segments := lo.Filter(strings.Split(path, "/"), func(s string, _ int) bool {
		return s != ""
	})
	if len(segments) < 2 {
		return FallbackVariantTitle
	}
	return segments[len(segments)-2]
}
