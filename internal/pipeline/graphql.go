package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
)

// One or more underscores, then graphql or graphiql with a case-insensitive "ql".
var graphqlPathPattern = regexp.MustCompile(`^/_+graphi?(?i:ql)(/.*)?$`)

const maxGraphQLBody = 1 << 20

// GraphQLRequest is a single GraphQL-over-HTTP operation.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Executor runs a validated operation against the data layer and returns the
// JSON response document ({"data": ..., "errors": [...]}).
type Executor interface {
	Execute(ctx context.Context, req GraphQLRequest) ([]byte, error)
}

// GraphQLHandler serves the data API and its explorer UI.
type GraphQLHandler struct {
	executor Executor
	ide      string
	logger   logging.Logger
}

// NewGraphQLHandler creates the handler. A nil executor means the data layer
// is not ready; requests then fail individually with a 500.
func NewGraphQLHandler(executor Executor, ide string, logger logging.Logger) *GraphQLHandler {
	return &GraphQLHandler{
		executor: executor,
		ide:      ide,
		logger:   logger.WithComponent("graphql"),
	}
}

// Name implements Handler.
func (*GraphQLHandler) Name() string { return "graphql" }

// TryHandle implements Handler.
func (h *GraphQLHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if !graphqlPathPattern.MatchString(r.URL.Path) {
		return PassThrough
	}

	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		writeGraphQLError(w, "method not allowed", http.StatusMethodNotAllowed)
		return Claimed
	}

	if r.Method == http.MethodGet && r.URL.Query().Get("query") == "" && acceptsHTML(r) {
		h.serveExplorer(w, r)
		return Claimed
	}

	if h.executor == nil {
		err := errors.NewConfigError(errors.ErrCodeDataLayerNotReady, "the GraphQL data layer is not ready")
		h.logger.Error(r.Context(), err, "graphql request before data layer was ready", "path", r.URL.Path)
		writeGraphQLError(w, err.Message, http.StatusInternalServerError)
		return Claimed
	}

	req, err := readGraphQLRequest(r)
	if err != nil {
		writeGraphQLError(w, err.Error(), http.StatusBadRequest)
		return Claimed
	}

	doc, parseErr := parser.ParseQuery(&ast.Source{Input: req.Query})
	if parseErr != nil {
		writeGraphQLError(w, parseErr.Error(), http.StatusBadRequest)
		return Claimed
	}
	if req.OperationName != "" && doc.Operations.ForName(req.OperationName) == nil {
		writeGraphQLError(w, fmt.Sprintf("unknown operation named %q", req.OperationName), http.StatusBadRequest)
		return Claimed
	}
	if r.Method == http.MethodGet && hasMutation(doc, req.OperationName) {
		w.Header().Set("Allow", "POST")
		writeGraphQLError(w, "mutations must use POST", http.StatusMethodNotAllowed)
		return Claimed
	}

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		h.logger.Warn(r.Context(), err, "graphql execution failed", "operation", req.OperationName)
		status := http.StatusInternalServerError
		if errors.IsNetworkError(err) {
			status = http.StatusBadGateway
		}
		writeGraphQLError(w, err.Error(), status)
		return Claimed
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
	return Claimed
}

func (h *GraphQLHandler) serveExplorer(w http.ResponseWriter, r *http.Request) {
	page := graphiQLPage
	if h.ide == config.IDEPlayground {
		page = playgroundPage
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, strings.ReplaceAll(page, "{{endpoint}}", jsString(r.URL.Path)))
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func hasMutation(doc *ast.QueryDocument, operationName string) bool {
	for _, op := range doc.Operations {
		if operationName != "" && op.Name != operationName {
			continue
		}
		if op.Operation == ast.Mutation {
			return true
		}
	}
	return false
}

func readGraphQLRequest(r *http.Request) (GraphQLRequest, error) {
	var req GraphQLRequest

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				return req, fmt.Errorf("variables are invalid JSON: %w", err)
			}
		}
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxGraphQLBody))
		if err != nil {
			return req, fmt.Errorf("reading request body: %w", err)
		}

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/graphql":
			req.Query = string(body)
		default:
			if err := json.Unmarshal(body, &req); err != nil {
				return req, fmt.Errorf("POST body is not a GraphQL JSON request: %w", err)
			}
		}
	}

	if strings.TrimSpace(req.Query) == "" {
		return req, fmt.Errorf("must provide query string")
	}
	return req, nil
}

func writeGraphQLError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]string{{"message": msg}},
	})
}

// jsString quotes s as a JavaScript string literal. json.Marshal escapes
// '<' and '>', so the result is safe inside a <script> element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
