package link

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/timeouts"
	"github.com/valyala/fasthttp"
)

// HTTPOptions configure the transport.
type HTTPOptions struct {
	Client *fasthttp.Client
	// Timeout bounds a round trip when ctx has no deadline.
	Timeout   time.Duration
	UserAgent string
}

// HTTPTransport POSTs operations to a single GraphQL endpoint.
type HTTPTransport struct {
	endpoint  string
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

// HTTP builds the terminal transport for endpoint.
func HTTP(endpoint string, opts HTTPOptions) (*HTTPTransport, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, apperrors.New(apperrors.CodeNotConfigured, "graphql endpoint is required")
	}
	client := opts.Client
	if client == nil {
		client = &fasthttp.Client{Name: "danz-dashboard"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = timeouts.GraphQLRequest
	}
	return &HTTPTransport{endpoint: endpoint, client: client, timeout: timeout, userAgent: opts.UserAgent}, nil
}

// RoundTrip sends req and decodes the {data, errors} envelope. A non-2xx
// status that still carries an envelope is returned for classification;
// anything else is a network failure.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req graphql.Request) (*graphql.Response, error) {
	body, err := json.Marshal(req.Body())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBadUserInput, "encode graphql request", err)
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(t.endpoint)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		httpReq.Header.SetUserAgent(t.userAgent)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	httpReq.SetBody(body)

	if err := t.do(ctx, httpReq, httpResp); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, fmt.Sprintf("post %s", req.Operation.Name), err)
	}

	status := httpResp.StatusCode()
	resp, err := graphql.DecodeResponse(httpResp.Body())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeBadResponse, fmt.Sprintf("graphql status %d", status), err)
	}
	resp.StatusCode = status
	return resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.timeout)
	}
	return t.client.DoDeadline(req, resp, deadline)
}

var _ Terminal = (*HTTPTransport)(nil)
