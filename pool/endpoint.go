package pool

import (
	"context"
	"time"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Transport sends one JSON-RPC call to one endpoint.
// It is satisfied by network/http.Client.
type Transport interface {
	Call(ctx context.Context, endpoint protocol.EndpointAddr, method string, params any, result any) error
}

// Endpoint is one admitted endpoint of a pool.
// Its mutable fields are guarded by the owning pool's mutex.
type Endpoint struct {
	Addr protocol.EndpointAddr

	transport Transport

	lastLatency         time.Duration
	lastChainID         uint64
	lastHeight          uint64
	consecutiveFailures int
}

// Call sends a JSON-RPC call to the endpoint.
func (e *Endpoint) Call(ctx context.Context, method string, params any, result any) error {
	return e.transport.Call(ctx, e.Addr, method, params, result)
}

func (e *Endpoint) String() string {
	return e.Addr.String()
}

// EndpointStatus is a point-in-time snapshot of an admitted endpoint.
type EndpointStatus struct {
	Addr                protocol.EndpointAddr `json:"addr"`
	LastLatency         time.Duration         `json:"last_latency"`
	LastChainID         uint64                `json:"last_chain_id"`
	LastHeight          uint64                `json:"last_height"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	Sanctioned          bool                  `json:"sanctioned"`
	SanctionReason      protocol.ErrorKind    `json:"sanction_reason,omitempty"`
	Current             bool                  `json:"current"`
}
