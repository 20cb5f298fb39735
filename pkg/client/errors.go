package client

import "fmt"

// ConnectionError wraps a transport-level failure that the retry loop in
// Call treats as retryable: the peer wasn't reachable, the socket file was
// missing, or the connection dropped mid-request.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("client: connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError wraps a read/write deadline expiring, also retryable.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("client: timed out: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ClientError wraps a non-retryable local failure: a malformed response
// payload, or any transport error that isn't a timeout or connection drop.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string { return fmt.Sprintf("client: %v", e.Err) }
func (e *ClientError) Unwrap() error { return e.Err }

// RPCResponseError is a protocol-level error the server returned in an
// Envelope's error field. Never retried, per §4.7.
type RPCResponseError struct {
	Code    int
	Message string
	Data    map[string]any
}

func (e *RPCResponseError) Error() string {
	return fmt.Sprintf("client: rpc error %d: %s", e.Code, e.Message)
}
