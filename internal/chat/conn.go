//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=mocks/mock_conn.go -package=mocks
package chat

// Conn is one live transport channel as seen by the chat core.
type Conn interface {
	// ID is stable for the lifetime of the connection and unique process-wide.
	ID() string
	// Send queues payload without blocking. It reports false when the
	// connection is closed or its buffer is full.
	Send(payload []byte) bool
}

// Peers exposes every open connection in the process.
type Peers interface {
	Snapshot() []Conn
}
