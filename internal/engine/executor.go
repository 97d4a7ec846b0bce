package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/routing"
	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// DefaultMessage is the body returned when a flow finishes without setting a response.
const DefaultMessage = "Executed successfully"

// Request is one inbound call to a flow endpoint.
type Request struct {
	// Controller defaults to the first path segment when empty.
	Controller string
	Method     string
	Path       string
	Query      map[string]any
	Headers    map[string]string
	Body       any
}

// Result describes a finished (or failed) flow execution.
type Result struct {
	RequestID  string                    `json:"request_id"`
	Controller string                    `json:"controller"`
	Endpoint   schema.Endpoint           `json:"endpoint"`
	StartNode  string                    `json:"start_node,omitempty"`
	Params     map[string]string         `json:"params,omitempty"`
	Response   *state.Response           `json:"response"`
	Responded  bool                      `json:"responded"`
	Variables  map[string]any            `json:"variables,omitempty"`
	Outputs    map[string]map[string]any `json:"outputs,omitempty"`
	DurationMs int64                     `json:"duration_ms"`
}

// Executor turns requests into flow executions: it resolves the controller,
// endpoint and start node, creates a fresh context and runs the interpreter.
type Executor struct {
	catalog  *graph.Catalog
	interp   *Interpreter
	router   routing.Router
	logger   *slog.Logger
	observer Observer
	pool     *Pool
}

// ExecutorConfig holds optional collaborators. Zero values select defaults.
type ExecutorConfig struct {
	Router   routing.Router
	Logger   *slog.Logger
	Observer Observer
	// Pool bounds concurrent executions. Nil means unbounded.
	Pool *Pool
}

func NewExecutor(catalog *graph.Catalog, interp *Interpreter, cfg ExecutorConfig) *Executor {
	e := &Executor{
		catalog:  catalog,
		interp:   interp,
		router:   cfg.Router,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		pool:     cfg.Pool,
	}
	if e.router == nil {
		e.router = routing.SegmentRouter{}
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}
	return e
}

// Catalog returns the controllers this executor serves.
func (e *Executor) Catalog() *graph.Catalog { return e.catalog }

// Execute runs the flow behind req. Resolution failures return before any node
// runs. The returned Result is non-nil whenever a controller was found, even on
// error, so callers can report what was attempted.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	name := req.Controller
	if name == "" {
		name = routing.FirstSegment(req.Path)
	}

	var result *Result
	run := func(ctx context.Context) error {
		var err error
		result, err = e.execute(ctx, name, req)
		return err
	}

	var err error
	if e.pool != nil {
		err = e.pool.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if result != nil {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	e.observer.RequestCompleted(name, StatusCode(err, result), time.Since(start))
	return result, err
}

func (e *Executor) execute(ctx context.Context, name string, req Request) (*Result, error) {
	ctrl, err := e.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	result := &Result{Controller: name}

	ep, params, err := routing.MatchEndpoint(ctrl, req.Method, req.Path, e.router)
	if err != nil {
		return result, err
	}
	result.Endpoint, result.Params = ep, params

	startID, err := routing.ResolveStartNode(ctrl, ep)
	if err != nil {
		return result, err
	}
	result.StartNode = startID

	st := state.New(&state.Request{
		Method:  req.Method,
		Path:    req.Path,
		Params:  params,
		Query:   req.Query,
		Headers: req.Headers,
		Body:    req.Body,
		Env:     ctrl.Env(),
	})
	result.RequestID = st.ID()

	ctx = logging.WithRequestID(ctx, st.ID())
	ctx = logging.WithController(ctx, name)
	log := logging.LogWith(ctx, e.logger)
	log.DebugContext(ctx, "flow started", "endpoint", ep.ID, "start_node", startID)

	runErr := e.interp.Run(ctx, &Execution{Controller: ctrl, State: st}, startID)

	result.Variables = st.Variables()
	result.Outputs = st.Outputs()
	if resp := st.Response(); resp != nil {
		result.Response, result.Responded = resp, true
	} else {
		result.Response = DefaultResponse()
	}

	if runErr != nil {
		log.WarnContext(ctx, "flow failed", "error", runErr)
		return result, runErr
	}
	log.DebugContext(ctx, "flow finished", "status", result.Response.StatusCode)
	return result, nil
}

// DefaultResponse is returned when a flow completes without a response node.
func DefaultResponse() *state.Response {
	return &state.Response{
		StatusCode: http.StatusOK,
		Body:       map[string]any{"message": DefaultMessage},
	}
}

// StatusCode maps an execution error to an HTTP status: unknown controller or
// endpoint is 404, everything else 500. A nil error yields the flow's status.
func StatusCode(err error, result *Result) int {
	if err == nil {
		if result != nil && result.Response != nil {
			return result.Response.StatusCode
		}
		return http.StatusOK
	}
	switch schema.Code(err) {
	case schema.ErrCodeControllerNotFound, schema.ErrCodeEndpointNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
