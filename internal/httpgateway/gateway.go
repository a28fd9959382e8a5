// Package httpgateway executes HTTP requests over one pooled client and hands
// back status and body. Non-2xx responses are results, not errors.
package httpgateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/kar10s/airtwitch/internal/domain"
)

const maxBodyBytes = 8 << 20

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Charset returns the charset parameter of the response content type.
func (r *Response) Charset() string {
	if r == nil {
		return ""
	}
	for _, part := range strings.Split(r.Header.Get("Content-Type"), ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if found && strings.EqualFold(strings.TrimSpace(key), "charset") {
			return strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return ""
}

// Gateway decorates every request with a fixed header set and sends it
// through a shared *http.Client.
type Gateway struct {
	client   *http.Client
	defaults http.Header
}

// NewPooledClient returns the single client every gateway in the process
// should share.
func NewPooledClient() *http.Client {
	return cleanhttp.DefaultPooledClient()
}

func New(client *http.Client, defaults http.Header) *Gateway {
	if client == nil {
		client = NewPooledClient()
	}
	return &Gateway{
		client:   client,
		defaults: defaults.Clone(),
	}
}

func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		target, _, _ := strings.Cut(req.URL, "?")
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = target
		}
		return nil, domain.NewError(domain.ErrTransport, method+" "+target, err)
	}
	for key, values := range g.defaults {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	res, err := g.client.Do(httpReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(httpReq)
		}
		return nil, domain.NewError(domain.ErrTransport, method+" "+redact(httpReq), err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewError(domain.ErrTransport, method+" "+redact(httpReq), fmt.Errorf("read body: %w", err))
	}

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       payload,
	}, nil
}

// redact drops the query string so tokens never reach logs or errors.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
