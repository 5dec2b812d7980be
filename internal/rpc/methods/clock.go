// Package methods contains RPC method handlers for the application.
package methods

import (
	"context"
	"time"

	"listenify.dev/syncengine/internal/rpc"
)

// TimingSyncParams represents the parameters for the TimingSync method.
type TimingSyncParams struct {
	ClientSendMs int64 `json:"clientSendMs"`
}

// TimingSyncResult is the timestamp pair a client uses to estimate one-way
// delay and clock offset against this server.
type TimingSyncResult struct {
	ServerReceiveMs int64 `json:"serverReceiveMs"`
	ServerSendMs    int64 `json:"serverSendMs"`
}

// RegisterClockMethod registers the Clock Service's single unauthenticated
// method. It is registered without AuthMiddleware (only the recovery,
// logging and metrics wrappers apply), since timing probes must work before a connection has
// presented a token.
func RegisterClockMethod(hr rpc.HandlerRegistry) {
	rpc.Register(hr, rpc.MethodTimingSync, TimingSync)
}

// TimingSync records the server's receive and send timestamps around the
// handler body, performing no blocking I/O between the two reads so the
// pair reflects only wire and scheduling latency, never a dependency call.
func TimingSync(ctx context.Context, client *rpc.Client, p *TimingSyncParams) (any, error) {
	receiveMs := time.Now().UnixMilli()
	sendMs := time.Now().UnixMilli()
	return TimingSyncResult{ServerReceiveMs: receiveMs, ServerSendMs: sendMs}, nil
}
