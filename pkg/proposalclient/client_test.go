package proposalclient

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   []byte
}

func serve(t *testing.T, handler func(ctx *fasthttp.RequestCtx)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		calls = append(calls, recorded{
			method: string(ctx.Method()),
			path:   string(ctx.RequestURI()),
			auth:   string(ctx.Request.Header.Peek("Authorization")),
			body:   append([]byte(nil), ctx.PostBody()...),
		})
		handler(ctx)
	}}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = ln.Close()
	})

	doer := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return New("http://proposals.test/", "secret-token", WithDoer(doer)), &calls
}

func write(ctx *fasthttp.RequestCtx, status int, env transport.Envelope) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	raw, _ := json.Marshal(env)
	ctx.SetBody(raw)
}

func TestClient_FindDraft(t *testing.T) {
	client, calls := serve(t, func(ctx *fasthttp.RequestCtx) {
		write(ctx, fasthttp.StatusOK, transport.NewSuccess(transport.DraftLookupResponse{
			Found: true,
			Draft: &domain.DraftRef{ID: "p-1", ProposalNumber: "PRP-001001"},
		}, nil))
	})

	ref, err := client.FindDraft(context.Background(), "a+b@example.com")

	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "p-1", ref.ID)
	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/proposals/draft?email=a%2Bb%40example.com", (*calls)[0].path)
	assert.Equal(t, "Bearer secret-token", (*calls)[0].auth)
}

func TestClient_FindDraftNotFound(t *testing.T) {
	client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
		write(ctx, fasthttp.StatusOK, transport.NewSuccess(transport.DraftLookupResponse{}, nil))
	})

	ref, err := client.FindDraft(context.Background(), "nobody@example.com")

	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestClient_SaveProposal(t *testing.T) {
	client, calls := serve(t, func(ctx *fasthttp.RequestCtx) {
		write(ctx, fasthttp.StatusCreated, transport.NewSuccess(transport.SaveResponse{
			Success: true, ProposalID: "p-9", ProposalNumber: "PRP-001009",
		}, nil))
	})

	resp, err := client.SaveProposal(context.Background(), transport.ProposalRequest{
		Customer: transport.CustomerPayload{Name: "Ada", Email: "ada@example.com"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "p-9", resp.ProposalID)
	require.Len(t, *calls, 1)
	assert.Equal(t, fasthttp.MethodPost, (*calls)[0].method)
	assert.Contains(t, string((*calls)[0].body), `"ada@example.com"`)
}

func TestClient_SaveProposalRejected(t *testing.T) {
	client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
		env := transport.NewError(string(domain.ErrCodeInvalid), "customer name and email are required", nil)
		env.Data = transport.SaveResponse{Success: false, Error: "customer name and email are required"}
		write(ctx, fasthttp.StatusBadRequest, env)
	})

	resp, err := client.SaveProposal(context.Background(), transport.ProposalRequest{})

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.False(t, resp.Success)
	assert.Equal(t, "customer name and email are required", resp.Error)
}

func TestClient_UnavailableServer(t *testing.T) {
	client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
		write(ctx, fasthttp.StatusServiceUnavailable, transport.NewError(string(domain.ErrCodeUnavailable), "storage unavailable", nil))
	})

	err := client.UpdateStatus(context.Background(), "p-1", domain.StatusSent)

	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnavailable))
}

func TestClient_CancelledContext(t *testing.T) {
	client, calls := serve(t, func(ctx *fasthttp.RequestCtx) {
		write(ctx, fasthttp.StatusOK, transport.NewSuccess(nil, nil))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FindDraft(ctx, "ada@example.com")

	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnavailable))
	assert.Empty(t, *calls)
}
