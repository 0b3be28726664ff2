package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/conneroisu/previewd/internal/errors"
)

const maxGraphQLResponse = 32 << 20

// RemoteExecutor forwards operations to an external GraphQL endpoint. It is
// the data layer used when graphql.upstream is configured.
type RemoteExecutor struct {
	endpoint string
	client   *http.Client
}

// NewRemoteExecutor creates an executor posting to endpoint. A nil client
// uses http.DefaultClient.
func NewRemoteExecutor(endpoint string, client *http.Client) *RemoteExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteExecutor{endpoint: endpoint, client: client}
}

// Execute implements Executor.
func (e *RemoteExecutor) Execute(ctx context.Context, req GraphQLRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeProxyTransport, "graphql upstream unreachable", err).
			WithContext("endpoint", e.endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphQLResponse))
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeProxyTransport, "reading graphql upstream response", err)
	}

	// GraphQL servers report query errors in a JSON body, often with a 4xx.
	if resp.StatusCode >= http.StatusInternalServerError || !json.Valid(body) {
		return nil, errors.NewNetworkError(errors.ErrCodeProxyTransport,
			fmt.Sprintf("graphql upstream returned %d", resp.StatusCode), nil)
	}
	return body, nil
}
