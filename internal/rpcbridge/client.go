// Package rpcbridge is the gRPC transport shared by the out-of-process
// indicator/signal worker bridge: a pluggable alternate implementation of
// the indicator.Service/signal.Service ports that scores bars in an
// external (typically Python) process instead of in-process Go, per
// SPEC_FULL §1.2/§4.3. The teacher's worker bridge (internal/strategy's
// WorkerClient/PythonStrategy) is the grounding for this client's shape;
// it's relocated here since both the indicator and the signal bridge need
// to share one connection instead of each dialing its own.
package rpcbridge

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// jsonCodec marshals RPC payloads as JSON instead of wire-format protobuf.
// The worker process is a script, not a generated-stub consumer, so a
// self-describing codec avoids requiring a shared compiled .proto on both
// sides of the bridge; grpc itself still owns framing, multiplexing, and
// transport security.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// BarPoint is one OHLCV bar handed to the worker, independent of any
// in-process bar representation so this package has no dependency on
// barpipeline.
type BarPoint struct {
	Open, High, Low, Close, Volume float64
	Datetime                       time.Time
}

// CalculateBarRequest carries an instrument's bar history to the worker.
type CalculateBarRequest struct {
	VtSymbol string
	Bars     []BarPoint
}

// CalculateBarResponse is the indicator snapshot the worker computed.
type CalculateBarResponse struct {
	Indicators map[string]float64
}

// SignalRequest carries an instrument's current indicator snapshot, and
// (for a close check) the position being evaluated.
type SignalRequest struct {
	VtSymbol         string
	Indicators       map[string]float64
	PositionDirection string // empty for an open-signal check
	PositionOpenPrice float64
}

// SignalResponse is the worker's verdict: Fired reports whether a signal
// was raised at all, Signal its opaque reason string.
type SignalResponse struct {
	Fired  bool
	Signal string
}

// Client is a thin RPC client over one gRPC connection to the worker
// process, shared by the indicator and signal gRPC bridges.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the worker at addr. Connection is insecure (loopback or
// an already-TLS-terminated sidecar), matching the teacher's own bridge.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

const (
	methodCalculateBar     = "/optioncore.strategyrpc.Worker/CalculateBar"
	methodCheckOpenSignal  = "/optioncore.strategyrpc.Worker/CheckOpenSignal"
	methodCheckCloseSignal = "/optioncore.strategyrpc.Worker/CheckCloseSignal"
	rpcTimeout             = 2 * time.Second
)

// CalculateBar asks the worker to compute indicators for req.
func (c *Client) CalculateBar(ctx context.Context, req CalculateBarRequest) (CalculateBarResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp CalculateBarResponse
	err := c.conn.Invoke(ctx, methodCalculateBar, req, &resp, grpc.CallContentSubtype(jsonCodec{}.Name()))
	return resp, err
}

// CheckOpenSignal asks the worker whether req's instrument fires an open
// signal right now.
func (c *Client) CheckOpenSignal(ctx context.Context, req SignalRequest) (SignalResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp SignalResponse
	err := c.conn.Invoke(ctx, methodCheckOpenSignal, req, &resp, grpc.CallContentSubtype(jsonCodec{}.Name()))
	return resp, err
}

// CheckCloseSignal asks the worker whether req's position should close.
func (c *Client) CheckCloseSignal(ctx context.Context, req SignalRequest) (SignalResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	var resp SignalResponse
	err := c.conn.Invoke(ctx, methodCheckCloseSignal, req, &resp, grpc.CallContentSubtype(jsonCodec{}.Name()))
	return resp, err
}
