package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"codeduel/internal/match"
	"codeduel/internal/util/httputil"
)

type ClientOptions struct {
	Endpoint string
	UserID   string
}

// Client is a thin typed wrapper over the HTTP API, used by tests and CLI
// tooling.
type Client struct {
	o      ClientOptions
	client *http.Client
}

func NewClient(o ClientOptions, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{o: o, client: httpClient}
}

func (c *Client) setUpRequest(req *http.Request) {
	req.Header.Set("X-User-ID", c.o.UserID)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) decodeError(rsp *http.Response) error {
	if 200 <= rsp.StatusCode && rsp.StatusCode <= 299 {
		return nil
	}
	var b bytes.Buffer
	_, err := io.Copy(&b, rsp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if rsp.Header.Get("Content-Type") == "application/json" {
		var apiErr *Error
		if err := json.Unmarshal(b.Bytes(), &apiErr); err != nil {
			return fmt.Errorf("unmarshal error json: %w", err)
		}
		return apiErr
	}
	return httputil.MakeError(rsp.StatusCode, b.String())
}

func (c *Client) do(ctx context.Context, method, path string, req, rsp any) error {
	var body io.Reader = http.NoBody
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		body = bytes.NewBuffer(data)
	}
	hReq, err := http.NewRequestWithContext(ctx, method, c.o.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setUpRequest(hReq)
	hRsp, err := c.client.Do(hReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, hRsp.Body)
		_ = hRsp.Body.Close()
	}()
	if err := c.decodeError(hRsp); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	rspBytes, err := io.ReadAll(hRsp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(rspBytes, rsp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func doClientRequest[Req any, Rsp any](ctx context.Context, c *Client, path string, req *Req) (*Rsp, error) {
	var rsp Rsp
	if err := c.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

func (c *Client) CreateMatch(ctx context.Context, req *CreateMatchRequest) (*CreateMatchResponse, error) {
	return doClientRequest[CreateMatchRequest, CreateMatchResponse](ctx, c, "/matches", req)
}

func (c *Client) JoinMatch(ctx context.Context, req *JoinMatchRequest) (*JoinMatchResponse, error) {
	return doClientRequest[JoinMatchRequest, JoinMatchResponse](ctx, c, "/matches/join", req)
}

func (c *Client) StartMatch(ctx context.Context, req *StartMatchRequest) (*StartMatchResponse, error) {
	return doClientRequest[StartMatchRequest, StartMatchResponse](ctx, c, "/matches/start", req)
}

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	return doClientRequest[SubmitRequest, SubmitResponse](ctx, c, "/matches/submit", req)
}

func (c *Client) LinkHandle(ctx context.Context, req *LinkHandleRequest) (*LinkHandleResponse, error) {
	return doClientRequest[LinkHandleRequest, LinkHandleResponse](ctx, c, "/users/link", req)
}

func (c *Client) GetSnapshot(ctx context.Context, matchID string) (*match.Snapshot, error) {
	var snap match.Snapshot
	if err := c.do(ctx, http.MethodGet, "/matches/"+matchID, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) ListMatches(ctx context.Context) (*ListMatchesResponse, error) {
	var rsp ListMatchesResponse
	if err := c.do(ctx, http.MethodGet, "/matches", nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}
