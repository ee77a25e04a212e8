package interceptors

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/activity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/chatflow/orchestrator/internal/tracing"
)

// WorkflowHTTPRoundTripper adds workflow metadata and trace context to outgoing HTTP requests
type WorkflowHTTPRoundTripper struct {
	base http.RoundTripper
}

// NewWorkflowHTTPRoundTripper wraps base, defaulting to http.DefaultTransport.
func NewWorkflowHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &WorkflowHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. The request is cloned before headers are set.
func (w *WorkflowHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if id, runID, ok := activityExecution(req.Context()); ok {
		req.Header.Set("X-Workflow-ID", id)
		req.Header.Set("X-Run-ID", runID)
	}
	tracing.InjectTraceparent(req.Context(), req)
	return w.base.RoundTrip(req)
}

// activityExecution reports the workflow that owns ctx, if ctx is an activity context.
func activityExecution(ctx context.Context) (id, runID string, ok bool) {
	if !activity.IsActivity(ctx) {
		return "", "", false
	}
	info := activity.GetInfo(ctx)
	if info.WorkflowExecution.ID == "" {
		return "", "", false
	}
	return info.WorkflowExecution.ID, info.WorkflowExecution.RunID, true
}

// TraceparentUnaryClientInterceptor forwards the caller's trace context on gRPC calls.
func TraceparentUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if tp := tracing.W3CTraceparent(ctx); tp != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "traceparent", tp)
		}
		if id, runID, ok := activityExecution(ctx); ok {
			ctx = metadata.AppendToOutgoingContext(ctx, "x-workflow-id", id, "x-run-id", runID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
