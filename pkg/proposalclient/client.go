// Package proposalclient talks to the proposal API on behalf of authoring
// clients such as proposalctl.
package proposalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
)

// Doer is satisfied by *fasthttp.Client.
type Doer interface {
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

type Client struct {
	baseURL string
	token   string
	http    Doer
	timeout time.Duration
}

type Option func(*Client)

// WithDoer replaces the underlying fasthttp client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &fasthttp.Client{Name: "proposalctl"},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

// FindDraft asks the server for a resumable draft of the given customer.
func (c *Client) FindDraft(ctx context.Context, email string) (*domain.DraftRef, error) {
	var out transport.DraftLookupResponse
	path := "/api/v1/proposals/draft?email=" + url.QueryEscape(email)
	if _, err := c.call(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, nil
	}
	return out.Draft, nil
}

// SaveProposal creates or updates a proposal. A rejected save returns the
// server's SaveResponse together with the classified error.
func (c *Client) SaveProposal(ctx context.Context, req transport.ProposalRequest) (transport.SaveResponse, error) {
	var out transport.SaveResponse
	env, err := c.call(ctx, fasthttp.MethodPost, "/api/v1/proposals", req, &out)
	if err != nil {
		if env != nil && len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &out)
		}
		out.Success = false
		if out.Error == "" {
			out.Error = err.Error()
		}
		return out, err
	}
	return out, nil
}

// UpdateStatus moves a proposal to status.
func (c *Client) UpdateStatus(ctx context.Context, proposalID string, status domain.Status) error {
	path := "/api/v1/proposals/" + url.PathEscape(proposalID) + "/status"
	_, err := c.call(ctx, fasthttp.MethodPatch, path, transport.StatusRequest{Status: string(status)}, nil)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) (*envelope, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCodeInvalid, "encode request", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "request cancelled", err)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable, "proposal api unreachable", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, domain.WrapError(domain.ErrCodeUnavailable,
			fmt.Sprintf("unexpected response (status %d)", resp.StatusCode()), err)
	}
	if env.Status != "success" {
		return &env, responseError(resp.StatusCode(), env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, domain.WrapError(domain.ErrCodeInternal, "decode response", err)
		}
	}
	return &env, nil
}

func responseError(status int, env envelope) error {
	message := fmt.Sprintf("request failed with status %d", status)
	var text string
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &text) == nil && text != "" {
		message = text
	}
	code := domain.ErrorCode(env.Code)
	switch {
	case code == "":
		code = domain.ErrCodeInternal
	case status == fasthttp.StatusServiceUnavailable:
		code = domain.ErrCodeUnavailable
	}
	return domain.NewError(code, message)
}
