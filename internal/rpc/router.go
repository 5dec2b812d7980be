// Package rpc provides WebSocket-based RPC functionality.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/utils"
)

// HandlerFunc is a function that handles an RPC request.
type HandlerFunc func(ctx context.Context, client *Client, params json.RawMessage) (any, error)

type HandlerFuncNoParams func(ctx context.Context, client *Client) (any, error)

func (h HandlerFuncNoParams) handlerFunc() HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		return h(ctx, client)
	}
}
func RegisterNoParams(hr HandlerRegistry, method string, h HandlerFuncNoParams) {
	hr.Register(method, h.handlerFunc())
}

type HandlerFuncWith[T any] func(ctx context.Context, client *Client, params *T) (any, error)

func (h HandlerFuncWith[T]) handlerFunc() HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		var p T
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &Error{
					Code:    ErrInvalidParams,
					Message: "Invalid parameters",
					Data:    err.Error(),
				}
			}
		}
		return h(ctx, client, &p)
	}
}

type HandlerRegistry interface {
	Register(method string, handler HandlerFunc)
	Wrap(mw MiddlewareFunc) HandlerRegistry
}

func Register[T any](hr HandlerRegistry, method string, h HandlerFuncWith[T]) {
	hr.Register(method, h.handlerFunc())
}

// Router routes RPC requests to the appropriate handler.
type Router struct {
	// handlers is a map of method names to handler functions.
	handlers map[string]HandlerFunc

	// mutex is used to synchronize access to the handlers map.
	mutex sync.RWMutex

	// logger is the router's logger.
	logger *utils.Logger
}

// MiddlewareFunc is a function that wraps a handler function.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type HandlerRegWrapped struct {
	inner HandlerRegistry
	mw    MiddlewareFunc
}

// Register registers a handler for a method.
func (h HandlerRegWrapped) Register(method string, handler HandlerFunc) {
	h.inner.Register(method, h.mw(handler))
}

// Wrap wraps the handler registry with middleware.
func (h HandlerRegWrapped) Wrap(mw MiddlewareFunc) HandlerRegistry {
	return HandlerRegWrapped{
		inner: h,
		mw:    mw,
	}
}

// NewRouter creates a new router.
func NewRouter(logger *utils.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.Named("router"),
	}
}

// Register registers a handler for a method.
func (r *Router) Register(method string, handler HandlerFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.handlers[method] = handler
	r.logger.Debug("registered handler", "method", method)
}

// Wrap wraps the router with middleware.
func (r *Router) Wrap(mw MiddlewareFunc) HandlerRegistry {
	return HandlerRegWrapped{
		inner: r,
		mw:    mw,
	}
}

type contextKey string

const (
	contextKeyClient contextKey = "client"
	contextKeyUserID contextKey = "userID"
	contextKeyMethod contextKey = "method"
)

// MethodFromContext returns the JSON-RPC method name being handled, set by
// Route before invoking the handler chain.
func MethodFromContext(ctx context.Context) string {
	method, _ := ctx.Value(contextKeyMethod).(string)
	return method
}

// Route routes a request to the appropriate handler. A panic inside the
// handler chain is recovered by RecoveryMiddleware, not here: Route itself
// never recovers, so a panic in a handler that forgot the middleware still
// surfaces loudly during development.
func (r *Router) Route(client *Client, request *Request) *Response {
	r.mutex.RLock()
	handler, ok := r.handlers[request.Method]
	r.mutex.RUnlock()

	if !ok {
		r.logger.Warn("method not found", "method", request.Method)
		return NewErrorResponse(request.ID, ErrMethodNotFound, fmt.Sprintf("method '%s' not found", request.Method), nil)
	}

	ctx := context.WithValue(context.Background(), contextKeyClient, client)
	ctx = context.WithValue(ctx, contextKeyUserID, client.UserID)
	ctx = context.WithValue(ctx, contextKeyMethod, request.Method)

	result, err := handler(ctx, client, request.Params)
	if err != nil {
		return handleError(request.ID, err)
	}

	if request.IsNotification() {
		return nil
	}

	return NewResponse(request.ID, result)
}

// handleError converts an error to an appropriate error response. *Error
// values from the rpc package pass through verbatim; everything else is
// routed through fromSyncErr so a room manager or store error surfaces only
// its taxonomy message.
func handleError(id any, err error) *Response {
	if rpcErr, ok := err.(*Error); ok {
		return NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return fromSyncErr(id, err)
}

// AuthMiddleware rejects a request from a connection that never presented
// a valid token. Clock Service's timing.sync is the only method registered
// without this middleware.
func AuthMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		if client.UserID == uuid.Nil {
			return nil, ErrAuthenticationRequired.Error()
		}
		return next(ctx, client, params)
	}
}

// LoggingMiddleware creates middleware that logs requests and responses.
func LoggingMiddleware(logger *utils.Logger) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
			logger.Debug("rpc request", "client", client.ID, "userID", client.UserID)
			result, err := next(ctx, client, params)
			if err != nil {
				logger.Error("rpc error", err, "client", client.ID, "userID", client.UserID)
			} else {
				logger.Debug("rpc response", "client", client.ID, "userID", client.UserID)
			}
			return result, err
		}
	}
}

// RPCMetricsRecorder receives one observation per handled JSON-RPC request.
// Satisfied by *system.MetricsService without importing it here, so the
// transport package stays free of a dependency on the services layer.
type RPCMetricsRecorder interface {
	ObserveRPCRequest(method, outcome string, duration time.Duration)
}

// MetricsMiddleware records request counts and latency per method, reading
// the method name Route stashed in ctx since the handler signature itself
// carries only the raw params.
func MetricsMiddleware(recorder RPCMetricsRecorder) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, client, params)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			recorder.ObserveRPCRequest(MethodFromContext(ctx), outcome, time.Since(start))
			return result, err
		}
	}
}

// RecoveryMiddleware recovers a panicking handler and flags the connection
// fatal so it closes once the error response is flushed: a panic in one
// connection's handler never takes down another connection's goroutines.
func RecoveryMiddleware(logger *utils.Logger) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered", fmt.Errorf("panic: %v", r), "client", client.ID, "userID", client.UserID)
					client.markFatal()
					err = ErrInternalError.Error()
				}
			}()
			return next(ctx, client, params)
		}
	}
}
