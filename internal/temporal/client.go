package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chatflow/orchestrator/internal/interceptors"
	"github.com/chatflow/orchestrator/internal/metrics"
)

// Caller-facing outcomes. Errors returned by Client wrap exactly one of these.
var (
	ErrNotFound         = errors.New("workflow not found")
	ErrNotRunning       = errors.New("workflow not running")
	ErrAlreadyStarted   = errors.New("workflow already started")
	ErrDeadlineExceeded = errors.New("client deadline exceeded")
	ErrUnavailable      = errors.New("workflow service unavailable")
)

const defaultCallTimeout = 10 * time.Second

// Options configures Dial.
type Options struct {
	HostPort     string
	Namespace    string
	CallTimeout  time.Duration
	DialAttempts int
	Tracing      bool
}

// Client is the workflow engine client used by the HTTP surface and the CLI.
// Every call runs under a caller deadline. When it expires the caller gets
// ErrDeadlineExceeded while the engine call finishes in the background.
type Client struct {
	c       client.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Dial connects to the engine, retrying with a linear backoff capped at 15s.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	copts := client.Options{
		HostPort:  opts.HostPort,
		Namespace: opts.Namespace,
		Logger:    NewZapAdapter(logger),
		ConnectionOptions: client.ConnectionOptions{
			DialOptions: []grpc.DialOption{
				grpc.WithChainUnaryInterceptor(interceptors.TraceparentUnaryClientInterceptor()),
			},
		},
	}
	if opts.Tracing {
		tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("configure tracing interceptor: %w", err)
		}
		copts.Interceptors = []interceptor.ClientInterceptor{tracer}
	}

	attempts := opts.DialAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c, err := client.DialContext(ctx, copts)
		if err == nil {
			logger.Info("Connected to Temporal", zap.String("host", opts.HostPort), zap.String("namespace", opts.Namespace))
			return NewClient(c, opts.CallTimeout, logger), nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt), zap.String("host", opts.HostPort), zap.Duration("sleep", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("dial temporal %s: %w", opts.HostPort, errors.Join(ErrUnavailable, lastErr))
}

// NewClient wraps an existing SDK client.
func NewClient(c client.Client, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{c: c, timeout: timeout, logger: logger}
}

// SDK exposes the underlying client for worker construction.
func (c *Client) SDK() client.Client { return c.c }

func (c *Client) Close() { c.c.Close() }

// StartOptions routes a new execution.
type StartOptions struct {
	ID        string
	TaskQueue string
}

// Start begins workflowType with args. An ID already in use is ErrAlreadyStarted.
func (c *Client) Start(ctx context.Context, workflowType string, opts StartOptions, args ...interface{}) (*Handle, error) {
	var runID string
	err := c.call(ctx, "start", opts.ID, func(ctx context.Context) error {
		run, err := c.c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:                                       opts.ID,
			TaskQueue:                                opts.TaskQueue,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflowType, args...)
		if err != nil {
			return err
		}
		runID = run.GetRunID()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Handle{c: c, id: opts.ID, runID: runID}, nil
}

// Handle addresses an execution by workflow id (latest run).
func (c *Client) Handle(workflowID string) *Handle {
	return &Handle{c: c, id: workflowID}
}

type Handle struct {
	c     *Client
	id    string
	runID string
}

func (h *Handle) ID() string    { return h.id }
func (h *Handle) RunID() string { return h.runID }

// Signal delivers a signal. An unknown or closed execution is ErrNotFound.
func (h *Handle) Signal(ctx context.Context, name string, arg interface{}) error {
	return h.c.call(ctx, "signal", h.id, func(ctx context.Context) error {
		return h.c.c.SignalWorkflow(ctx, h.id, "", name, arg)
	})
}

// Query runs a query and decodes the answer into out. Queries are only answered by
// open executions; a closed one is ErrNotRunning.
func (h *Handle) Query(ctx context.Context, name string, out interface{}, args ...interface{}) error {
	return h.c.call(ctx, "query", h.id, func(ctx context.Context) error {
		resp, err := h.c.c.QueryWorkflowWithOptions(ctx, &client.QueryWorkflowWithOptionsRequest{
			WorkflowID:           h.id,
			QueryType:            name,
			Args:                 args,
			QueryRejectCondition: enumspb.QUERY_REJECT_CONDITION_NOT_OPEN,
		})
		if err != nil {
			return err
		}
		if resp.QueryRejected != nil {
			return fmt.Errorf("%w: query rejected, status %s", ErrNotRunning, resp.QueryRejected.GetStatus())
		}
		if out == nil || resp.QueryResult == nil || !resp.QueryResult.HasValue() {
			return nil
		}
		return resp.QueryResult.Get(out)
	})
}

// Description is the subset of execution info callers act on.
type Description struct {
	WorkflowID string    `json:"workflowId"`
	RunID      string    `json:"runId"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Running    bool      `json:"running"`
	TaskQueue  string    `json:"taskQueue"`
	StartTime  time.Time `json:"startTime"`
}

// Describe probes an execution. Callers use ErrNotFound to decide between
// signaling an existing workflow and starting a new one.
func (h *Handle) Describe(ctx context.Context) (*Description, error) {
	var d *Description
	err := h.c.call(ctx, "describe", h.id, func(ctx context.Context) error {
		resp, err := h.c.c.DescribeWorkflowExecution(ctx, h.id, "")
		if err != nil {
			return err
		}
		info := resp.GetWorkflowExecutionInfo()
		d = &Description{
			WorkflowID: info.GetExecution().GetWorkflowId(),
			RunID:      info.GetExecution().GetRunId(),
			Type:       info.GetType().GetName(),
			Status:     info.GetStatus().String(),
			Running:    info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
			TaskQueue:  info.GetTaskQueue(),
		}
		if ts := info.GetStartTime(); ts != nil {
			d.StartTime = ts.AsTime()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Result waits for the execution to close and decodes its result. It is bounded
// by ctx only, not by the call deadline.
func (h *Handle) Result(ctx context.Context, out interface{}) error {
	err := h.c.c.GetWorkflow(ctx, h.id, h.runID).Get(ctx, out)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return fmt.Errorf("result %s: %w: %w", h.id, mapped, err)
		}
		return fmt.Errorf("result %s: %w", h.id, err)
	}
	return nil
}

// call runs fn on a context detached from the caller's cancellation and waits
// at most the call timeout, or until ctx is done.
func (c *Client) call(ctx context.Context, op, workflowID string, fn func(context.Context) error) error {
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(context.WithoutCancel(ctx))
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = ErrDeadlineExceeded
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", ErrDeadlineExceeded, ctx.Err())
	}
	metrics.ClientCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ClientCalls.WithLabelValues(op, "ok").Inc()
		return nil
	}
	mapped := classify(err)
	outcome := "error"
	if mapped != nil {
		outcome = outcomeLabel(mapped)
	}
	metrics.ClientCalls.WithLabelValues(op, outcome).Inc()

	if errors.Is(err, ErrDeadlineExceeded) {
		c.logger.Warn("Engine call abandoned at deadline",
			zap.String("op", op), zap.String("workflow_id", workflowID), zap.Duration("timeout", c.timeout))
		return fmt.Errorf("%s %s: %w", op, workflowID, err)
	}
	if mapped == nil || errors.Is(err, mapped) {
		return fmt.Errorf("%s %s: %w", op, workflowID, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, workflowID, mapped, err)
}

// classify maps engine errors onto the caller-facing sentinels. Unrecognized
// errors return nil.
func classify(err error) error {
	for _, sentinel := range []error{ErrNotFound, ErrNotRunning, ErrAlreadyStarted, ErrDeadlineExceeded, ErrUnavailable} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	var notFound *serviceerror.NotFound
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	var precondition *serviceerror.FailedPrecondition
	var queryFailed *serviceerror.QueryFailed
	var unavailable *serviceerror.Unavailable
	var deadline *serviceerror.DeadlineExceeded
	switch {
	case errors.As(err, &notFound):
		return ErrNotFound
	case errors.As(err, &started):
		return ErrAlreadyStarted
	case errors.As(err, &precondition), errors.As(err, &queryFailed):
		return ErrNotRunning
	case errors.As(err, &unavailable), errors.As(err, &deadline):
		return ErrUnavailable
	}

	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyStarted
	case codes.FailedPrecondition:
		return ErrNotRunning
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return ErrUnavailable
	}
	return nil
}

func outcomeLabel(sentinel error) string {
	switch sentinel {
	case ErrNotFound:
		return "not_found"
	case ErrNotRunning:
		return "not_running"
	case ErrAlreadyStarted:
		return "already_started"
	case ErrDeadlineExceeded:
		return "deadline"
	default:
		return "unavailable"
	}
}
