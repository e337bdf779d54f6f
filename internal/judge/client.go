package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"codeduel/internal/match"
)

const DefaultBaseURL = "https://codeforces.com/api"

type ClientOptions struct {
	BaseURL string        `toml:"base-url"`
	Timeout time.Duration `toml:"timeout"`
	// RateEvery throttles outgoing API calls. The judge bans clients that
	// exceed roughly one call per two seconds.
	RateEvery time.Duration `toml:"rate-every"`
	RateBurst int           `toml:"rate-burst"`
}

func (o *ClientOptions) FillDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout == 0 {
		o.Timeout = 15 * time.Second
	}
	if o.RateEvery == 0 {
		o.RateEvery = 2 * time.Second
	}
	if o.RateBurst == 0 {
		o.RateBurst = 1
	}
}

type httpClient struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

var _ Client = (*httpClient)(nil)

func NewClient(o ClientOptions) Client {
	o.FillDefaults()
	return &httpClient{
		client:  &http.Client{Timeout: o.Timeout},
		baseURL: o.BaseURL,
		limiter: rate.NewLimiter(rate.Every(o.RateEvery), o.RateBurst),
	}
}

// envelope is the judge's uniform response wrapper. Status is "OK" or
// "FAILED", Comment explains a failure.
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

func (c *httpClient) call(ctx context.Context, method string, query url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + "/" + method
	if len(query) != 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	rsp, err := c.client.Do(req)
	if err != nil {
		return &match.Error{Code: match.ErrUpstreamUnavailable, Message: fmt.Sprintf("judge unreachable: %v", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, rsp.Body)
		_ = rsp.Body.Close()
	}()

	if rsp.StatusCode != http.StatusOK {
		return &match.Error{Code: match.ErrUpstreamUnavailable, Message: fmt.Sprintf("judge returned http %v", rsp.StatusCode)}
	}
	var env envelope
	if err := json.NewDecoder(rsp.Body).Decode(&env); err != nil {
		return &match.Error{Code: match.ErrUpstreamUnavailable, Message: fmt.Sprintf("bad judge response: %v", err)}
	}
	if env.Status != "OK" {
		return &match.Error{Code: match.ErrUpstreamUnavailable, Message: fmt.Sprintf("judge call failed: %v", env.Comment)}
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return &match.Error{Code: match.ErrUpstreamUnavailable, Message: fmt.Sprintf("bad judge result: %v", err)}
	}
	return nil
}

func (c *httpClient) UserStatus(ctx context.Context, handle string, count int) ([]Submission, error) {
	query := url.Values{}
	query.Set("handle", handle)
	query.Set("from", "1")
	query.Set("count", strconv.Itoa(count))
	var subs []Submission
	if err := c.call(ctx, "user.status", query, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *httpClient) Problems(ctx context.Context) ([]ProblemRef, error) {
	var result struct {
		Problems []ProblemRef `json:"problems"`
	}
	if err := c.call(ctx, "problemset.problems", nil, &result); err != nil {
		return nil, err
	}
	return result.Problems, nil
}
