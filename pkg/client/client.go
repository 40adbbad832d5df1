package client

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

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/water-network/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")
)

type WaterNetworkClient interface {
	GetGateWall(ctx context.Context, id string) (types.GateWall, error)
	SetFlowDirection(ctx context.Context, id string, direction types.FlowDirection) (types.GateWall, error)
	GetPipelines(ctx context.Context) ([]types.Pipeline, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Export(ctx context.Context) (types.Document, error)
}

type SearchResult struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type waterNetworkClient struct {
	url        string
	httpClient http.Client
}

var tracer = otel.Tracer("water-network-client")

func New(waterNetworkUrl string) WaterNetworkClient {
	return &waterNetworkClient{
		url: strings.TrimSuffix(waterNetworkUrl, "/"),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *waterNetworkClient) GetGateWall(ctx context.Context, id string) (types.GateWall, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-gatewall")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	g := types.GateWall{}
	err = c.do(ctx, http.MethodGet, "/api/v0/gatewalls/"+url.PathEscape(id), nil, &g)

	return g, err
}

func (c *waterNetworkClient) SetFlowDirection(ctx context.Context, id string, direction types.FlowDirection) (types.GateWall, error) {
	var err error
	ctx, span := tracer.Start(ctx, "set-flow-direction")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body := struct {
		Direction types.FlowDirection `json:"direction"`
	}{direction}

	g := types.GateWall{}
	err = c.do(ctx, http.MethodPut, "/api/v0/gatewalls/"+url.PathEscape(id)+"/flow", body, &g)

	return g, err
}

func (c *waterNetworkClient) GetPipelines(ctx context.Context) ([]types.Pipeline, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-pipelines")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	pipelines := []types.Pipeline{}
	err = c.do(ctx, http.MethodGet, "/api/v0/pipelines", nil, &pipelines)

	return pipelines, err
}

func (c *waterNetworkClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var err error
	ctx, span := tracer.Start(ctx, "search")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	results := []SearchResult{}
	err = c.do(ctx, http.MethodGet, "/api/v0/search?q="+url.QueryEscape(query), nil, &results)

	return results, err
}

func (c *waterNetworkClient) Export(ctx context.Context) (types.Document, error) {
	var err error
	ctx, span := tracer.Start(ctx, "export")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	doc := types.Document{}
	err = c.get(ctx, "/api/v0/export", &doc)

	return doc, err
}

// do sends body as json and unwraps the data field of the response into result.
func (c *waterNetworkClient) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	respBody, err := c.send(ctx, method, path, r)
	if err != nil {
		return err
	}

	response := struct {
		Data json.RawMessage `json:"data"`
	}{}

	if err = json.Unmarshal(respBody, &response); err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return json.Unmarshal(response.Data, result)
}

func (c *waterNetworkClient) get(ctx context.Context, path string, result any) error {
	respBody, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(respBody, result)
}

func (c *waterNetworkClient) send(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	log := logging.GetFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return nil, fmt.Errorf("%w: %s", errorFromStatus(resp.StatusCode), string(respBody))
	}

	return respBody, nil
}

func errorFromStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return fmt.Errorf("request failed with status code %d", code)
	}
}
