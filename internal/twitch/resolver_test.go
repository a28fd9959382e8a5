package twitch

import (
	"context"
	"errors"
	"testing"

	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/manifest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	calls []string

	channels []domain.Channel
	token    domain.ChannelToken
	tokenErr error
	live     bool
	liveErr  error
	manifest Manifest
	fetchErr error
}

func (f *fakePlatform) SearchChannels(_ context.Context, query string) ([]domain.Channel, error) {
	f.calls = append(f.calls, "search:"+query)
	return f.channels, nil
}

func (f *fakePlatform) AccessToken(_ context.Context, ch domain.Channel) (domain.ChannelToken, error) {
	f.calls = append(f.calls, "token:"+ch.Name)
	return f.token, f.tokenErr
}

func (f *fakePlatform) IsLive(_ context.Context, ch domain.Channel) (bool, error) {
	f.calls = append(f.calls, "live:"+ch.ID)
	return f.live, f.liveErr
}

func (f *fakePlatform) FetchManifest(_ context.Context, ch domain.Channel, token domain.ChannelToken) (Manifest, error) {
	f.calls = append(f.calls, "manifest:"+ch.Name+":"+token.Signature)
	return f.manifest, f.fetchErr
}

const liveMaster = "#EXTM3U\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080\n" +
	"https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/chunked/index-live.m3u8\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
	"https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/720p30/index-live.m3u8\n"

func newResolver(api PlatformAPI) *Resolver {
	return NewResolver(api, manifest.New(), zerolog.Nop())
}

func TestResolveLiveVariants(t *testing.T) {
	api := &fakePlatform{
		token:    domain.ChannelToken{Token: "tok", Signature: "sig"},
		live:     true,
		manifest: Manifest{URL: "https://usher.ttvnw.net/api/channel/hls/gdq.m3u8", Body: []byte(liveMaster)},
	}
	ch := &domain.Channel{ID: "42", Name: "gdq"}

	variants, err := newResolver(api).ResolveLiveVariants(context.Background(), ch)
	require.NoError(t, err)

	assert.Equal(t, []string{"token:gdq", "live:42", "manifest:gdq:sig"}, api.calls)
	assert.True(t, ch.Live)
	assert.Equal(t, []domain.LiveStreamVariant{
		{Title: "chunked", URI: "https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/chunked/index-live.m3u8"},
		{Title: "720p30", URI: "https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/720p30/index-live.m3u8"},
	}, variants)
}

func TestResolveNotLiveNeverFetchesManifest(t *testing.T) {
	api := &fakePlatform{token: domain.ChannelToken{Token: "tok", Signature: "sig"}, live: false}
	ch := &domain.Channel{ID: "42", Name: "gdq", Live: true}

	variants, err := newResolver(api).ResolveLiveVariants(context.Background(), ch)
	require.NoError(t, err)
	assert.NotNil(t, variants)
	assert.Empty(t, variants)
	assert.False(t, ch.Live)
	assert.Equal(t, []string{"token:gdq", "live:42"}, api.calls)
}

func TestResolveTokenDeniedAbortsFlow(t *testing.T) {
	api := &fakePlatform{tokenErr: domain.NewError(domain.ErrAuth, "access token", errors.New("denied"))}

	_, err := newResolver(api).ResolveLiveVariants(context.Background(), &domain.Channel{ID: "42", Name: "gdq"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, []string{"token:gdq"}, api.calls)
}

func TestResolveEmptyManifest(t *testing.T) {
	api := &fakePlatform{live: true, manifest: Manifest{Body: []byte("#EXTM3U\n#EXT-X-VERSION:3\n")}}

	variants, err := newResolver(api).ResolveLiveVariants(context.Background(), &domain.Channel{ID: "42", Name: "gdq"})
	require.NoError(t, err)
	assert.NotNil(t, variants)
	assert.Empty(t, variants)
}

func TestResolveMalformedManifest(t *testing.T) {
	api := &fakePlatform{live: true, manifest: Manifest{Body: []byte("<html>offline</html>")}}

	_, err := newResolver(api).ResolveLiveVariants(context.Background(), &domain.Channel{ID: "42", Name: "gdq"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.NotErrorIs(t, err, domain.ErrResolution)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrParse, derr.Kind)
}

func TestResolveDeclaredTitleWins(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,Main stage\nhttps://cdn.example/live/chunked/index.m3u8\n#EXTINF:-1,\nhttps://cdn.example/live/audio_only/index.m3u8\n"
	api := &fakePlatform{live: true, manifest: Manifest{Body: []byte(body)}}

	variants, err := newResolver(api).ResolveLiveVariants(context.Background(), &domain.Channel{ID: "42", Name: "gdq"})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "Main stage", variants[0].Title)
	assert.Equal(t, "audio_only", variants[1].Title)
}

func TestSearchDelegates(t *testing.T) {
	api := &fakePlatform{channels: []domain.Channel{{ID: "1", Name: "a"}}}

	channels, err := newResolver(api).Search(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, []string{"search:a"}, api.calls)
}

func TestInferTitle(t *testing.T) {
	cases := map[string]string{
		"https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/chunked/index-live.m3u8": "chunked",
		"https://video-weaver.fra05.hls.ttvnw.net/v1/playlist/720p30/index-live.m3u8":  "720p30",
		"https://cdn.example/a%20b/index.m3u8?token=x":                                 "a b",
		"chunked/index.m3u8":                                                           "chunked",
		"https://cdn.example/index.m3u8":                                               FallbackVariantTitle,
		"index.m3u8":                                                                   FallbackVariantTitle,
		"":                                                                             FallbackVariantTitle,
	}
	for uri, want := range cases {
		assert.Equal(t, want, InferTitle(uri), uri)
	}
}
