package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout bounds a single request when Config.Timeout is not set.
	DefaultTimeout = 20 * time.Second

	apiPrefix    = "/api"
	maxErrorBody = 64 << 10

	HeaderRequestID     = "X-Request-ID"
	HeaderClientName    = "X-Client-Name"
	HeaderClientVersion = "X-Client-Version"
)

// Hooks are called after a request failed with the matching kind. They run on the
// goroutine that issued the request.
type Hooks struct {
	// OnUnauthorized receives the bearer token the rejected request carried, so a
	// late 401 for a replaced token can be told apart from one for the current token.
	OnUnauthorized func(ctx context.Context, sentToken string, err *Error)
	OnForbidden    func(ctx context.Context, err *Error)
	OnNetworkError func(ctx context.Context, err *Error)
	OnTimeout      func(ctx context.Context, err *Error)
	// OnResponse observes every completed round trip; status is 0 when no response
	// was received.
	OnResponse func(method, path string, status int, elapsed time.Duration)
}

// Config configures a [Client].
type Config struct {
	// BaseURL is the backend origin, e.g. http://localhost:3000. The /api prefix is
	// appended unless already present.
	BaseURL       string
	Timeout       time.Duration
	ClientName    string
	ClientVersion string
	Debug         bool
	// Tracing wraps the transport with OpenTelemetry instrumentation.
	Tracing    bool
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Hooks      Hooks
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Anonymous requests carry no bearer token; 401 and 403 map to
	// KindInvalidCredentials and KindAccountDisabled and no hook runs.
	Anonymous bool
	// Quiet requests carry the token but do not run the 401/403 hooks.
	Quiet bool
}

// Response describes a completed call. NotFound marks the 404 soft success: no error
// is returned and the decode target is left untouched.
type Response struct {
	Status    int
	Header    http.Header
	NotFound  bool
	RequestID string
}

// Client is the configured request/response pipeline. It is safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	name    string
	version string
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
	hooks Hooks
}

// New validates cfg and returns a [Client].
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("api base URL required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base URL %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(u.Path, apiPrefix) {
		u.Path += apiPrefix
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	if cfg.Tracing {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc.Transport = otelhttp.NewTransport(base)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "api").Logger()
	}
	if !cfg.Debug && logger.GetLevel() < zerolog.InfoLevel {
		logger = logger.Level(zerolog.InfoLevel)
	}

	name := cfg.ClientName
	if name == "" {
		name = "goCartes"
	}

	return &Client{
		base:    u.String(),
		http:    hc,
		timeout: timeout,
		name:    name,
		version: cfg.ClientVersion,
		logger:  logger,
		hooks:   cfg.Hooks,
	}, nil
}

// BaseURL returns the resolved endpoint prefix, including /api.
func (c *Client) BaseURL() string {
	return c.base
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// SetBearerToken sets the default Authorization header. An empty token removes it.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// BearerToken returns the token currently sent with authenticated requests.
func (c *Client) BearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetHooks replaces the failure hooks.
func (c *Client) SetHooks(h Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

func (c *Client) currentHooks() Hooks {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do sends req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	var body io.Reader
	contentType := ""
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			e := NewError(KindValidation, "Requête invalide", 0, err)
			return nil, e
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.exchange(ctx, req, body, contentType, func(resp *http.Response) error {
		return decodeJSON(resp, out)
	})
}

// Upload sends one file as multipart/form-data under field and decodes the JSON reply.
func (c *Client) Upload(ctx context.Context, path, field, filename string, r io.Reader, out any) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, NewError(KindValidation, "Fichier invalide", 0, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, NewError(KindValidation, "Lecture du fichier impossible", 0, err)
	}
	if err := mw.Close(); err != nil {
		return nil, NewError(KindValidation, "Fichier invalide", 0, err)
	}

	req := Request{Method: http.MethodPost, Path: path}
	return c.exchange(ctx, req, &buf, mw.FormDataContentType(), func(resp *http.Response) error {
		return decodeJSON(resp, out)
	})
}

// Download streams a 2xx response body into w. A 404 writes nothing.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (*Response, error) {
	req := Request{Method: http.MethodGet, Path: path}
	return c.exchange(ctx, req, nil, "", func(resp *http.Response) error {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return NewError(KindNetwork, msgNetwork, resp.StatusCode, err)
		}
		return nil
	})
}

func (c *Client) exchange(
	ctx context.Context,
	req Request,
	body io.Reader,
	contentType string,
	onSuccess func(*http.Response) error,
) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, requestID, sentToken, err := c.newRequest(reqCtx, req, body, contentType)
	if err != nil {
		return nil, NewError(KindValidation, "Requête invalide", 0, err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Msg("api request")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	hooks := c.currentHooks()
	if err != nil {
		e := transportError(ctx, reqCtx, err)
		c.logger.Warn().
			Str("method", req.Method).
			Str("path", req.Path).
			Str("request_id", requestID).
			Str("kind", string(e.Kind)).
			Err(err).
			Msg("api request failed")
		if hooks.OnResponse != nil {
			hooks.OnResponse(req.Method, req.Path, 0, elapsed)
		}
		c.fire(ctx, req, hooks, sentToken, e)
		return nil, e
	}
	defer resp.Body.Close()

	if hooks.OnResponse != nil {
		hooks.OnResponse(req.Method, req.Path, resp.StatusCode, elapsed)
	}

	out := &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		RequestID: requestID,
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("api response")
		if err := onSuccess(resp); err != nil {
			var e *Error
			if errors.As(err, &e) {
				if e.Kind == KindTimeout || e.Kind == KindNetwork {
					c.fire(ctx, req, hooks, sentToken, e)
				}
				return out, e
			}
			return out, NewError(KindServer, msgNotJSON, resp.StatusCode, err)
		}
		return out, nil

	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn().
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("api route not found")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		out.NotFound = true
		return out, nil
	}

	var sb serverBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &sb); jsonErr != nil {
			sb.Message = strings.TrimSpace(string(raw))
			if len(sb.Message) > 200 {
				sb.Message = sb.Message[:200]
			}
		}
	}
	e := classifyStatus(resp.StatusCode, sb, req.Anonymous)
	c.logger.Warn().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("kind", string(e.Kind)).
		Msg("api error response")
	c.fire(ctx, req, hooks, sentToken, e)
	return out, e
}

func (c *Client) newRequest(ctx context.Context, req Request, body io.Reader, contentType string) (*http.Request, string, string, error) {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.base + path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, "", "", err
	}

	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	} else {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(HeaderRequestID, requestID)
	httpReq.Header.Set(HeaderClientName, c.name)
	if c.version != "" {
		httpReq.Header.Set(HeaderClientVersion, c.version)
		httpReq.Header.Set("User-Agent", c.name+"/"+c.version)
	} else {
		httpReq.Header.Set("User-Agent", c.name)
	}
	var sentToken string
	if !req.Anonymous {
		if sentToken = c.BearerToken(); sentToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+sentToken)
		}
	}
	return httpReq, requestID, sentToken, nil
}

func (c *Client) fire(ctx context.Context, req Request, hooks Hooks, sentToken string, e *Error) {
	switch e.Kind {
	case KindSessionExpired:
		if !req.Quiet && hooks.OnUnauthorized != nil {
			hooks.OnUnauthorized(ctx, sentToken, e)
		}
	case KindPermissionDenied:
		if !req.Quiet && hooks.OnForbidden != nil {
			hooks.OnForbidden(ctx, e)
		}
	case KindNetwork:
		if hooks.OnNetworkError != nil {
			hooks.OnNetworkError(ctx, e)
		}
	case KindTimeout:
		if hooks.OnTimeout != nil {
			hooks.OnTimeout(ctx, e)
		}
	}
}

func decodeJSON(resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(KindNetwork, msgNetwork, resp.StatusCode, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		snippet := string(data)
		if len(snippet) > 100 {
			snippet = snippet[:100]
		}
		return NewError(KindServer, msgNotJSON, resp.StatusCode, fmt.Errorf("unexpected content type %q: %s", ct, snippet))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewError(KindServer, msgNotJSON, resp.StatusCode, err)
	}
	return nil
}

// transportError classifies a failure that produced no HTTP response. parent is the
// caller's context, reqCtx the per-request one derived from it.
func transportError(parent, reqCtx context.Context, err error) *Error {
	if errors.Is(parent.Err(), context.Canceled) {
		return NewError(KindCanceled, msgCanceled, 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return NewError(KindTimeout, msgTimeout, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, msgTimeout, 0, err)
	}
	return NewError(KindNetwork, msgNetwork, 0, err)
}
