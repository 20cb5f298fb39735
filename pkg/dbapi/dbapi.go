// Package dbapi implements the high-level client API spec.md §4.8
// describes: typed CRUD over Project, File and per-file attribute entities,
// layered over pkg/client's Call. Every method below costs one or two RPC
// round-trips, exactly as the original database client (client.py,
// client_operations.py) shapes its own create/get/update/delete helpers
// around the same select/insert/update/delete/execute primitives.
package dbapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maverikod/code-analysis-db/pkg/client"
	"github.com/maverikod/code-analysis-db/pkg/wire"
)

// API is the high-level client, wrapping a connected *client.Client.
type API struct {
	rpc *client.Client
}

// New wraps an already-constructed RPC client. Callers are responsible for
// calling Connect on it first.
func New(rpc *client.Client) *API {
	return &API{rpc: rpc}
}

func nowEpoch() float64 {
	return float64(time.Now().Unix())
}

// call is a thin wrapper that returns the RPC client's error unchanged and
// otherwise extracts the handler's "data" payload from a successful envelope — the shape every rpcmodel.Result variant renders
// its payload under.
func (a *API) call(ctx context.Context, method string, params map[string]any) (any, error) {
	env, err := a.rpc.Call(ctx, method, params, "")
	if err != nil {
		return nil, err
	}
	return resultData(env), nil
}

func resultData(env wire.Envelope) any {
	if env.Result == nil {
		return nil
	}
	return env.Result["data"]
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asRows(v any) []map[string]any {
	rows := asSlice(v)
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// asBool accepts a JSON bool as well as the numeric 0/1 SQLite stores
// booleans as, since a value round-tripped through the wire as a SQL
// column comes back as a float64, not a bool.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case int64:
		return b != 0
	default:
		return false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// ErrNotFound is returned by UpdateProject and UpdateFile when the target
// row does not exist, mirroring the original client's value-error. The
// delete operations report a missing row as false with a nil error.
var ErrNotFound = fmt.Errorf("dbapi: row not found")

func newID() string { return uuid.NewString() }
