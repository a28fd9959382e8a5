// Package twitch talks to the Twitch API and resolves a live channel into
// playable stream variants.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/kar10s/airtwitch/internal/adapters"
	"github.com/kar10s/airtwitch/internal/domain"
	"github.com/kar10s/airtwitch/internal/httpgateway"
	"github.com/kar10s/airtwitch/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIBase   = "https://api.twitch.tv"
	DefaultUsherBase = "https://usher.ttvnw.net/api/channel/hls/"

	headerClientID   = "Client-ID"
	apiAccept        = "application/vnd.twitchtv.v5+json"
	manifestAccept   = "application/vnd.apple.mpegurl"
	playerID         = "twitchweb"
	cacheBusterLimit = 1000000
	maxErrorBody     = 512
)

type Config struct {
	ClientID   string
	APIBase    string
	UsherBase  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Manifest is the raw variant playlist as served by the usher endpoint.
type Manifest struct {
	URL     string
	Body    []byte
	Charset string
}

type Client struct {
	api       adapters.HTTPDoer
	apiBase   string
	usherBase string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	randIntn  func(n int) int
}

// NewClient fails with a configuration error when no client ID is set; the
// platform API rejects every request without one.
func NewClient(cfg Config) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, domain.NewError(domain.ErrConfiguration, "twitch client", errors.New("client ID is not set"))
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.UsherBase == "" {
		cfg.UsherBase = DefaultUsherBase
	}

	headers := http.Header{}
	headers.Set(headerClientID, clientID)
	headers.Set("Accept", apiAccept)

	return &Client{
		api:       httpgateway.New(cfg.HTTPClient, headers),
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		usherBase: strings.TrimRight(cfg.UsherBase, "/") + "/",
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		randIntn:  rand.IntN,
	}, nil
}

// SearchChannels returns matching channels in API order. No matches is an
// empty list.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]domain.Channel, error) {
	const op = "search channels"

	params := url.Values{}
	params.Set("query", query)
	body, err := c.get(ctx, "search", "/kraken/search/channels", params)
	if err != nil {
		return nil, domain.NewError(domain.ErrResolution, op, err)
	}

	channels, err := parseSearch(body)
	if err != nil {
		return nil, domain.NewError(domain.ErrResolution, op, err)
	}
	c.logger.Debug().Str("query", query).Int("results", len(channels)).Msg("channel_search_done")
	return channels, nil
}

func (c *Client) ChannelByID(ctx context.Context, id string) (domain.Channel, error) {
	const op = "get channel"

	body, err := c.get(ctx, "channel", "/kraken/channels/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Channel{}, domain.NewError(domain.ErrResolution, op, err)
	}
	if !json.Valid(body) {
		return domain.Channel{}, domain.NewError(domain.ErrResolution, op, parseErr("channel body is not JSON"))
	}
	ch, err := parseChannel(body)
	if err != nil {
		return domain.Channel{}, domain.NewError(domain.ErrResolution, op, err)
	}
	return ch, nil
}

// AccessToken negotiates a fresh token for the channel. Every failure,
// including transport, is an authorization failure.
func (c *Client) AccessToken(ctx context.Context, ch domain.Channel) (domain.ChannelToken, error) {
	const op = "access token"

	path := "/api/channels/" + url.PathEscape(ch.Name) + "/access_token"
	body, err := c.get(ctx, "access_token", path, nil)
	if err != nil {
		return domain.ChannelToken{}, domain.NewError(domain.ErrAuth, op, err)
	}
	if !json.Valid(body) {
		return domain.ChannelToken{}, domain.NewError(domain.ErrAuth, op, parseErr("token body is not JSON"))
	}

	token := optString(body, "token")
	sig := optString(body, "sig")
	if token == "" || sig == "" {
		return domain.ChannelToken{}, domain.NewError(domain.ErrAuth, op, parseErr("token or signature missing"))
	}
	return domain.ChannelToken{Token: token, Signature: sig}, nil
}

// IsLive reports whether the channel currently has a stream. "stream": null
// means offline and is not an error.
func (c *Client) IsLive(ctx context.Context, ch domain.Channel) (bool, error) {
	const op = "live status"

	body, err := c.get(ctx, "stream", "/kraken/streams/"+url.PathEscape(ch.ID), nil)
	if err != nil {
		return false, domain.NewError(domain.ErrResolution, op, err)
	}
	if !json.Valid(body) {
		return false, domain.NewError(domain.ErrResolution, op, parseErr("stream body is not JSON"))
	}

	_, dataType, _, err := jsonparser.Get(body, "stream")
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError):
		return false, nil
	case err != nil:
		return false, domain.NewError(domain.ErrResolution, op, parseErr(err.Error()))
	}
	return dataType == jsonparser.Object, nil
}

// FetchManifest downloads the variant playlist for ch using token. Every
// call draws a new cache-buster value.
func (c *Client) FetchManifest(ctx context.Context, ch domain.Channel, token domain.ChannelToken) (Manifest, error) {
	const op = "fetch manifest"

	params := url.Values{}
	params.Set("player", playerID)
	params.Set("token", token.Token)
	params.Set("sig", token.Signature)
	params.Set("$allow_audio_only", "true")
	params.Set("allow_source", "true")
	params.Set("type", "any")
	params.Set("p", strconv.Itoa(c.randIntn(cacheBusterLimit)))

	manifestURL := c.usherBase + url.PathEscape(ch.Name) + ".m3u8"
	res, err := c.api.Do(ctx, httpgateway.Request{
		Method: http.MethodGet,
		URL:    manifestURL + "?" + params.Encode(),
		Header: http.Header{"Accept": []string{manifestAccept}},
	})
	if err != nil {
		c.metrics.ObserveAPIRequest("manifest", metrics.OutcomeTransport)
		return Manifest{}, domain.NewError(domain.ErrResolution, op, err)
	}
	if !res.OK() {
		c.metrics.ObserveAPIRequest("manifest", metrics.OutcomeHTTPError)
		c.logger.Warn().Str("channel", ch.Name).Int("status", res.StatusCode).Msg("manifest_fetch_rejected")
		return Manifest{}, domain.NewError(domain.ErrResolution, op, apiError("GET "+manifestURL, res))
	}
	c.metrics.ObserveAPIRequest("manifest", metrics.OutcomeOK)

	return Manifest{
		URL:     manifestURL,
		Body:    res.Body,
		Charset: res.Charset(),
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	target := c.apiBase + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	c.logger.Debug().Str("endpoint", endpoint).Str("path", path).Msg("api_request")
	res, err := c.api.Do(ctx, httpgateway.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		c.metrics.ObserveAPIRequest(endpoint, metrics.OutcomeTransport)
		return nil, err
	}
	if !res.OK() {
		c.metrics.ObserveAPIRequest(endpoint, metrics.OutcomeHTTPError)
		c.logger.Warn().Str("endpoint", endpoint).Int("status", res.StatusCode).Msg("api_request_rejected")
		return nil, apiError("GET "+path, res)
	}
	c.metrics.ObserveAPIRequest(endpoint, metrics.OutcomeOK)
	return res.Body, nil
}

func parseSearch(body []byte) ([]domain.Channel, error) {
	if !json.Valid(body) {
		return nil, parseErr("search body is not JSON")
	}

	raw, dataType, _, err := jsonparser.Get(body, "channels")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.Null {
		return []domain.Channel{}, nil
	}
	if err != nil {
		return nil, parseErr(err.Error())
	}
	if dataType != jsonparser.Array {
		return nil, parseErr("channels is not an array")
	}

	channels := []domain.Channel{}
	var firstErr error
	_, err = jsonparser.ArrayEach(raw, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if firstErr != nil {
			return
		}
		ch, chErr := parseChannel(value)
		if chErr != nil {
			firstErr = chErr
			return
		}
		channels = append(channels, ch)
	})
	if err != nil {
		return nil, parseErr(err.Error())
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return channels, nil
}

// parseChannel reads a v5 channel object. _id arrives as a number or a
// string depending on the endpoint.
func parseChannel(value []byte) (domain.Channel, error) {
	id, dataType, _, err := jsonparser.Get(value, "_id")
	if err != nil || (dataType != jsonparser.String && dataType != jsonparser.Number) {
		return domain.Channel{}, parseErr("channel without _id")
	}

	ch := domain.Channel{
		ID:          string(id),
		Name:        optString(value, "name"),
		DisplayName: optString(value, "display_name"),
		Status:      optString(value, "status"),
	}
	if ch.ID == "" || ch.Name == "" {
		return domain.Channel{}, parseErr(fmt.Sprintf("channel information is incomplete (id: %q, name: %q)", ch.ID, ch.Name))
	}
	return ch, nil
}

func optString(data []byte, key string) string {
	v, err := jsonparser.GetString(data, key)
	if err != nil {
		return ""
	}
	return v
}

func apiError(op string, res *httpgateway.Response) error {
	body := strings.TrimSpace(string(res.Body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return &domain.Error{
		Kind:   domain.ErrAPI,
		Op:     op,
		Status: res.StatusCode,
		Body:   body,
	}
}

func parseErr(msg string) error {
	return &domain.Error{Kind: domain.ErrParse, Err: errors.New(msg)}
}
