package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/errors"
)

type fakeExecutor struct {
	result []byte
	err    error
	reqs   []GraphQLRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req GraphQLRequest) ([]byte, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

func graphqlErrors(t *testing.T, body string) []string {
	t.Helper()
	var doc struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc), body)
	msgs := make([]string, len(doc.Errors))
	for i, e := range doc.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

func TestGraphQLPathPattern(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/__graphql", true},
		{"/___graphql", true},
		{"/_graphql", true},
		{"/__graphiql", true},
		{"/___graphiQL", true},
		{"/__graphQL/schema", true},
		{"/graphql", false},
		{"/__GRAPHQL", false},
		{"/__graphqlx", false},
		{"/api/__graphql", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, graphqlPathPattern.MatchString(tt.path), tt.path)
	}
}

func TestGraphQLHandler_Explorer(t *testing.T) {
	tests := []struct {
		ide   string
		title string
	}{
		{config.IDEGraphiQL, "<title>GraphiQL</title>"},
		{config.IDEPlayground, "<title>GraphQL Playground</title>"},
	}

	for _, tt := range tests {
		t.Run(tt.ide, func(t *testing.T) {
			h := NewGraphQLHandler(nil, tt.ide, testLogger)
			r := httptest.NewRequest(http.MethodGet, "/___graphql", nil)
			r.Header.Set("Accept", "text/html,application/xhtml+xml")
			rec := httptest.NewRecorder()

			assert.Equal(t, Claimed, h.TryHandle(rec, r))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.title)
			assert.Contains(t, rec.Body.String(), `"/___graphql"`)
			assert.NotContains(t, rec.Body.String(), "{{endpoint}}")
		})
	}
}

func TestGraphQLHandler_DataLayerNotReady(t *testing.T) {
	h := NewGraphQLHandler(nil, config.IDEGraphiQL, testLogger)

	r := httptest.NewRequest(http.MethodPost, "/__graphql", strings.NewReader(`{"query":"{ site { title } }"}`))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	assert.Equal(t, Claimed, h.TryHandle(rec, r))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, graphqlErrors(t, rec.Body.String()), 1)
}

func TestGraphQLHandler_Executes(t *testing.T) {
	exec := &fakeExecutor{result: []byte(`{"data":{"site":{"title":"Blog"}}}`)}
	h := NewGraphQLHandler(exec, config.IDEGraphiQL, testLogger)

	t.Run("POST json", func(t *testing.T) {
		body := `{"query":"query Q($n: Int) { posts(first: $n) { id } }","operationName":"Q","variables":{"n":3}}`
		r := httptest.NewRequest(http.MethodPost, "/__graphql", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		h.TryHandle(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":{"site":{"title":"Blog"}}}`, rec.Body.String())

		last := exec.reqs[len(exec.reqs)-1]
		assert.Equal(t, "Q", last.OperationName)
		assert.EqualValues(t, 3, last.Variables["n"])
	})

	t.Run("POST application/graphql", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/__graphql", strings.NewReader(`{ site { title } }`))
		r.Header.Set("Content-Type", "application/graphql")
		rec := httptest.NewRecorder()

		h.TryHandle(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{ site { title } }`, exec.reqs[len(exec.reqs)-1].Query)
	})

	t.Run("GET query string", func(t *testing.T) {
		q := url.Values{"query": {"{ site { title } }"}, "variables": {`{"a":"b"}`}}
		r := httptest.NewRequest(http.MethodGet, "/__graphql?"+q.Encode(), nil)
		r.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()

		h.TryHandle(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code, "a query wins over the explorer")
		assert.Equal(t, "b", exec.reqs[len(exec.reqs)-1].Variables["a"])
	})
}

func TestGraphQLHandler_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"unsupported method", http.MethodPut, "/__graphql", `{"query":"{ a }"}`, http.StatusMethodNotAllowed},
		{"missing query", http.MethodPost, "/__graphql", `{}`, http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/__graphql", `{"query":`, http.StatusBadRequest},
		{"syntax error", http.MethodPost, "/__graphql", `{"query":"{ site { "}`, http.StatusBadRequest},
		{"unknown operation", http.MethodPost, "/__graphql", `{"query":"query A { a }","operationName":"B"}`, http.StatusBadRequest},
		{"mutation over GET", http.MethodGet, "/__graphql?query=" + url.QueryEscape("mutation { touch }"), "", http.StatusMethodNotAllowed},
		{"bad variables", http.MethodGet, "/__graphql?query=%7Ba%7D&variables=nope", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{result: []byte(`{"data":{}}`)}
			h := NewGraphQLHandler(exec, config.IDEGraphiQL, testLogger)

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := httptest.NewRecorder()
			assert.Equal(t, Claimed, h.TryHandle(rec, httptest.NewRequest(tt.method, tt.target, body)))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, graphqlErrors(t, rec.Body.String()))
			assert.Empty(t, exec.reqs, "invalid operations never reach the data layer")
		})
	}
}

func TestGraphQLHandler_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"internal", errors.NewInternalError("ERR_X", "resolver panicked", nil), http.StatusInternalServerError},
		{"upstream", errors.NewNetworkError(errors.ErrCodeProxyTransport, "unreachable", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewGraphQLHandler(&fakeExecutor{err: tt.err}, config.IDEGraphiQL, testLogger)
			rec := httptest.NewRecorder()
			h.TryHandle(rec, httptest.NewRequest(http.MethodPost, "/__graphql", strings.NewReader(`{"query":"{ a }"}`)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGraphQLHandler_PassThrough(t *testing.T) {
	h := NewGraphQLHandler(nil, config.IDEGraphiQL, testLogger)
	assert.Equal(t, PassThrough, h.TryHandle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil)))
}

func TestRemoteExecutor(t *testing.T) {
	var got GraphQLRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)

		switch got.OperationName {
		case "Broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		case "Invalid":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"message":"Cannot query field"}]}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
		}
	}))
	t.Cleanup(upstream.Close)

	e := NewRemoteExecutor(upstream.URL, upstream.Client())
	ctx := context.Background()

	result, err := e.Execute(ctx, GraphQLRequest{Query: "{ ok }", Variables: map[string]interface{}{"a": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"ok":true}}`, string(result))
	assert.Equal(t, "{ ok }", got.Query)

	result, err = e.Execute(ctx, GraphQLRequest{Query: "query Invalid { nope }", OperationName: "Invalid"})
	require.NoError(t, err, "GraphQL errors are part of a valid response")
	assert.Contains(t, string(result), "Cannot query field")

	_, err = e.Execute(ctx, GraphQLRequest{Query: "query Broken { a }", OperationName: "Broken"})
	require.Error(t, err)
	assert.True(t, errors.IsNetworkError(err))

	unreachable := NewRemoteExecutor("http://127.0.0.1:1/graphql", nil)
	_, err = unreachable.Execute(ctx, GraphQLRequest{Query: "{ a }"})
	require.Error(t, err)
	assert.True(t, errors.IsNetworkError(err))
}
