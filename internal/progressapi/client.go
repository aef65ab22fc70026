// Package progressapi is the HTTP client for the story progress endpoint.
package progressapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"github.com/verte-zerg/lovefit/internal/progress"
)

const (
	// DefaultBaseURL points at a progress server on the local machine.
	DefaultBaseURL = "http://localhost:5001/api"

	contentCacheExpire = 30 // seconds
	cacheSize          = 1024 * 1024
)

var (
	// ErrUnexpectedStatus wraps non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedResponse wraps bodies that do not decode.
	ErrMalformedResponse = errors.New("malformed response")
)

// WorkoutPayload is the body posted for each workout. Duration is in whole
// seconds.
type WorkoutPayload struct {
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
	Duration int     `json:"duration"`
}

// ConnectionInfo is the answer of the test endpoint.
type ConnectionInfo struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Endpoints map[string]string `json:"endpoints"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *freecache.Cache
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      freecache.NewCache(cacheSize),
	}
}

// BaseURL returns the endpoint root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TestConnection checks that the server answers.
func (c *Client) TestConnection(ctx context.Context) (ConnectionInfo, error) {
	var info ConnectionInfo
	body, err := c.do(ctx, http.MethodGet, "/test", nil)
	if err != nil {
		return info, err
	}
	if err := decode(body, &info); err != nil {
		return info, err
	}
	return info, nil
}

// SubmitWorkout posts one workout and returns the unlock result.
func (c *Client) SubmitWorkout(ctx context.Context, w WorkoutPayload) (progress.Result, error) {
	var res progress.Result
	payload, err := json.Marshal(w)
	if err != nil {
		return res, fmt.Errorf("failed to encode workout: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/user-progress", payload)
	if err != nil {
		return res, err
	}
	if err := decode(body, &res); err != nil {
		return res, err
	}
	if res.NewlyUnlocked == nil {
		return res, fmt.Errorf("%w: missing newly_unlocked", ErrMalformedResponse)
	}
	// stale after a submit
	c.cache.Clear()
	return res, nil
}

// AvailableContent returns the user's unlocked and locked stories, cached briefly.
func (c *Client) AvailableContent(ctx context.Context, userID string) (progress.AvailableContent, error) {
	var content progress.AvailableContent
	cacheKey := []byte("content::" + userID)
	if cached, err := c.cache.Get(cacheKey); err == nil {
		if err := json.Unmarshal(cached, &content); err == nil {
			log.Tracef("available content for %s served from cache", userID)
			return content, nil
		}
	}

	body, err := c.do(ctx, http.MethodGet, "/available-content/"+url.PathEscape(userID), nil)
	if err != nil {
		return content, err
	}
	if err := decode(body, &content); err != nil {
		return content, err
	}
	if err := c.cache.Set(cacheKey, body, contentCacheExpire); err != nil {
		log.Errorf("failed to cache available content for %s: %s", userID, err)
	}
	return content, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debugf("calling progress api: %s %s", method, req.URL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	return nil
}
