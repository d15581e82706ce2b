package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

// DefaultURL is the Climate Data Store API root.
const DefaultURL = "https://cds.climate.copernicus.eu/api"

// Job states reported by the Retrieve API.
const (
	stateAccepted   = "accepted"
	stateRunning    = "running"
	stateSuccessful = "successful"
	stateFailed     = "failed"
	stateRejected   = "rejected"
	stateDismissed  = "dismissed"
)

var (
	// ErrJobFailed is returned when the data store gives up on a request.
	ErrJobFailed = errors.New("cds: request failed")
	// ErrNoDownloadLink is returned when a successful job has no asset href.
	ErrNoDownloadLink = errors.New("cds: result has no download link")
	// ErrSizeMismatch is returned when a download is shorter or longer than announced.
	ErrSizeMismatch = errors.New("cds: downloaded size mismatch")
	// ErrMissingKey is returned by Retrieve when no API key is configured.
	ErrMissingKey = errors.New("cds: api key is not configured")
)

// Options configures the client.
type Options struct {
	URL string
	Key string

	// PollInterval is the first wait between job status checks; it grows by
	// half on every check up to PollMaxInterval.
	PollInterval    time.Duration
	PollMaxInterval time.Duration

	HTTP HTTPClientConfig

	Logger zerolog.Logger
}

// DefaultOptions returns options with the data store's usual pacing.
func DefaultOptions() Options {
	return Options{
		URL:             DefaultURL,
		PollInterval:    time.Second,
		PollMaxInterval: 2 * time.Minute,
		HTTP: HTTPClientConfig{
			Client: &http.Client{},
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     30 * time.Second,
			},
			RequestTimeout: time.Minute,
		},
		Logger: zerolog.Nop(),
	}
}

// Client implements cmip6.Retriever for the CDS Retrieve API v1.
type Client struct {
	baseURL string
	key     string
	poll    time.Duration
	pollMax time.Duration
	httpCfg HTTPClientConfig
	logger  zerolog.Logger

	// host of baseURL; the API key is only sent there
	host string
}

// NewClient creates a new CDS client. Zero-valued options fall back to DefaultOptions.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = max(def.PollMaxInterval, opts.PollInterval)
	}
	if opts.HTTP.Client == nil {
		opts.HTTP.Client = def.HTTP.Client
	}
	if opts.HTTP.Backoff.InitialInterval <= 0 {
		opts.HTTP.Backoff = def.HTTP.Backoff
	}

	baseURL := strings.TrimRight(opts.URL, "/")
	var host string
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
	}

	return &Client{
		baseURL: baseURL,
		key:     opts.Key,
		poll:    opts.PollInterval,
		pollMax: opts.PollMaxInterval,
		httpCfg: opts.HTTP,
		logger:  opts.Logger,
		host:    host,
	}
}

// newCircuit returns the breaker guarding one retrieval and its download.
// Breakers are never shared between retrievals.
func (c *Client) newCircuit(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// sendsKey reports whether the API key may be attached to a request for rawURL.
func (c *Client) sendsKey(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, c.host)
}

type job struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Size int64  `json:"file:size"`
			Type string `json:"type"`
		} `json:"value"`
	} `json:"asset"`
}

// Retrieve submits the request and blocks until the job has finished.
func (c *Client) Retrieve(ctx context.Context, datasetID string, req cmip6.Request) (cmip6.Result, error) {
	if c.key == "" {
		return nil, ErrMissingKey
	}

	body, err := json.Marshal(struct {
		Inputs cmip6.Request `json:"inputs"`
	}{Inputs: req})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cb := c.newCircuit("cds:" + datasetID)

	var j job
	endpoint := c.baseURL + "/retrieve/v1/processes/" + url.PathEscape(datasetID) + "/execution"
	if err := c.doJSON(ctx, cb, http.MethodPost, endpoint, body, &j); err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}
	if j.JobID == "" {
		return nil, fmt.Errorf("submit request: response has no job id")
	}
	c.logger.Debug().Str("job", j.JobID).Str("dataset", datasetID).Msg("request submitted")

	if err := c.wait(ctx, cb, &j); err != nil {
		return nil, err
	}

	var res jobResults
	if err := c.doJSON(ctx, cb, http.MethodGet, c.jobURL(j.JobID)+"/results", nil, &res); err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	if res.Asset.Value.Href == "" {
		return nil, ErrNoDownloadLink
	}

	return &Result{
		client:  c,
		circuit: cb,
		JobID:   j.JobID,
		Href:    res.Asset.Value.Href,
		Size:    res.Asset.Value.Size,
	}, nil
}

// wait polls the job until it reaches a final state.
func (c *Client) wait(ctx context.Context, cb *gobreaker.CircuitBreaker, j *job) error {
	delay := c.poll
	last := ""
	for {
		switch j.Status {
		case stateSuccessful:
			return nil
		case stateFailed, stateRejected, stateDismissed:
			return c.jobError(ctx, cb, j)
		}
		if j.Status != last {
			c.logger.Info().Str("job", j.JobID).Str("status", j.Status).Msg("request is " + j.Status)
			last = j.Status
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*3/2, c.pollMax)

		if err := c.doJSON(ctx, cb, http.MethodGet, c.jobURL(j.JobID), nil, j); err != nil {
			return fmt.Errorf("poll job %s: %w", j.JobID, err)
		}
	}
}

// jobError builds the error for a job in a failed state. The reason is served
// by the results endpoint.
func (c *Client) jobError(ctx context.Context, cb *gobreaker.CircuitBreaker, j *job) error {
	err := c.doJSON(ctx, cb, http.MethodGet, c.jobURL(j.JobID)+"/results", nil, &struct{}{})
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return fmt.Errorf("%w (%s): %s", ErrJobFailed, j.Status, se.Message)
	}
	return fmt.Errorf("%w (%s)", ErrJobFailed, j.Status)
}

func (c *Client) jobURL(id string) string {
	return c.baseURL + "/retrieve/v1/jobs/" + url.PathEscape(id)
}

func (c *Client) doJSON(ctx context.Context, cb *gobreaker.CircuitBreaker, method, endpoint string, body []byte, out any) error {
	if c.httpCfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpCfg.RequestTimeout)
		defer cancel()
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("PRIVATE-TOKEN", c.key)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, cb, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Result is a finished CDS job whose archive can be downloaded.
type Result struct {
	client  *Client
	circuit *gobreaker.CircuitBreaker
	JobID   string
	Href    string
	Size    int64
}

// Download streams the archive to path. The file only appears at path once
// the transfer is complete.
func (r *Result) Download(ctx context.Context, path string) error {
	c := r.client
	cb := r.circuit
	if cb == nil {
		cb = c.newCircuit("cds:download")
	}
	// The key only goes to the API host.
	withKey := c.sendsKey(r.Href)
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Href, nil)
		if err != nil {
			return nil, err
		}
		if withKey {
			req.Header.Set("PRIVATE-TOKEN", c.key)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, cb, buildRequest)
	if err != nil {
		return fmt.Errorf("download %s: %w", r.JobID, err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", r.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("download %s: %w", r.JobID, err)
	}
	if r.Size > 0 && n != r.Size {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, n, r.Size)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move download into place: %w", err)
	}

	c.logger.Debug().Str("job", r.JobID).Int64("bytes", n).Str("path", path).Msg("archive downloaded")
	return nil
}
