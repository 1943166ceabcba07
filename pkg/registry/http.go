package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/cache"
	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/httputil"
	"github.com/convoy-dev/convoy/pkg/observability"
)

const httpTimeout = 10 * time.Second

// Config configures an HTTP registry client.
type Config struct {
	// BaseURL is the registry API root, e.g. "https://registry.example.com".
	BaseURL string

	// Token authenticates publish requests. Reads work without one.
	Token string

	// Cache backs metadata responses. Nil disables caching.
	Cache cache.Cache

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// HTTPClient implements [Client] against the registry HTTP API.
// Metadata reads are cached and retried; publishes are neither, so the
// executor stays in control of write retries.
type HTTPClient struct {
	http    *http.Client
	cache   cache.Cache
	baseURL string
	token   string
	agent   string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a registry client for the given config.
func NewHTTPClient(cfg Config) *HTTPClient {
	c := cfg.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "convoy/1.0 (https://github.com/convoy-dev/convoy)"
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   c,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		agent:   agent,
	}
}

// FetchState implements [Client].
func (c *HTTPClient) FetchState(ctx context.Context, pkg string, refresh bool) (*State, error) {
	key := cache.RegistryKey(c.baseURL, pkg)

	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			var state State
			if err := json.Unmarshal(data, &state); err == nil {
				observability.Cache().OnCacheHit(ctx, "registry")
				return &state, nil
			}
			// Corrupt entry: drop it and refetch.
			_ = c.cache.Delete(ctx, key)
		}
		observability.Cache().OnCacheMiss(ctx, "registry")
	}

	var state *State
	err := httputil.RetryWithBackoff(ctx, func() error {
		var fetchErr error
		state, fetchErr = c.fetchState(ctx, pkg)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(state); err == nil {
		if c.cache.Set(ctx, key, data, cache.TTLRegistry) == nil {
			observability.Cache().OnCacheSet(ctx, "registry", len(data))
		}
	}
	return state, nil
}

func (c *HTTPClient) fetchState(ctx context.Context, pkg string) (*State, error) {
	endpoint := fmt.Sprintf("%s/api/v1/packages/%s", c.baseURL, url.PathEscape(pkg))

	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return &State{Name: pkg, Exists: false}, nil
	}
	if err := checkStatus(status); err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "fetching state of %s", pkg)
	}

	var resp packageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRegistryTransient, err, "decoding registry response for %s", pkg)
	}

	state := &State{Name: pkg, Exists: true, Releases: make(map[string]Release, len(resp.Versions))}
	for _, v := range resp.Versions {
		state.Releases[v.Num] = Release{Version: v.Num, Fingerprint: v.Fingerprint, Yanked: v.Yanked}
	}
	return state, nil
}

// Publish implements [Client]. Transient failures come back wrapped
// retryable; the caller decides the retry policy.
func (c *HTTPClient) Publish(ctx context.Context, pkg string, version *semver.Version, fingerprint string) error {
	endpoint := fmt.Sprintf("%s/api/v1/packages/%s/%s",
		c.baseURL, url.PathEscape(pkg), url.PathEscape(version.String()))

	payload, err := json.Marshal(publishRequest{Fingerprint: fingerprint})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encoding publish request for %s", pkg)
	}

	_, status, err := c.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, err, "publishing %s %s", pkg, version)
	}

	switch {
	case status == http.StatusOK, status == http.StatusCreated:
	case status == http.StatusConflict:
		return errors.New(errors.ErrCodeRaceDetected, "%s %s already exists on the registry", pkg, version)
	default:
		return errors.Wrap(errors.ErrCodePublishFailed, checkStatus(status), "publishing %s %s", pkg, version)
	}

	// The cached state is now stale.
	_ = c.cache.Delete(ctx, cache.RegistryKey(c.baseURL, pkg))
	return nil
}

// do performs a single request and returns the body and status code.
// Network-level failures are transient and retryable; status codes are
// the caller's to interpret.
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrCodeInternal, err, "building request")
	}
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	observability.HTTP().OnRequest(ctx, method, req.URL.Host, req.URL.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, method, req.URL.Host, req.URL.Path, err)
		return nil, 0, httputil.Retryable(
			errors.Wrap(errors.ErrCodeRegistryTransient, err, "registry unreachable"))
	}
	defer resp.Body.Close()

	observability.HTTP().OnResponse(ctx, method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, httputil.Retryable(
			errors.Wrap(errors.ErrCodeRegistryTransient, err, "reading registry response"))
	}
	return body, resp.StatusCode, nil
}

// checkStatus maps a non-OK status code to the error taxonomy. Rate
// limits and server errors are retryable; auth and other client errors
// are fatal for the whole run.
func checkStatus(code int) error {
	switch {
	case code == http.StatusOK, code == http.StatusCreated:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeRegistryNotFound, "status %d", code)
	case code == http.StatusTooManyRequests:
		return httputil.Retryable(errors.New(errors.ErrCodeRateLimited, "status %d", code))
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return errors.New(errors.ErrCodeRegistryFatal, "status %d: check the registry token", code)
	case code >= 500:
		return httputil.Retryable(errors.New(errors.ErrCodeRegistryTransient, "status %d", code))
	case code >= 400:
		return errors.New(errors.ErrCodeRegistryFatal, "status %d", code)
	default:
		return errors.New(errors.ErrCodeRegistryTransient, "unexpected status %d", code)
	}
}

type packageResponse struct {
	Package struct {
		Name string `json:"name"`
	} `json:"package"`
	Versions []struct {
		Num         string `json:"num"`
		Fingerprint string `json:"fingerprint"`
		Yanked      bool   `json:"yanked"`
	} `json:"versions"`
}

type publishRequest struct {
	Fingerprint string `json:"fingerprint"`
}
