package chat

import (
	"log/slog"
	"sync/atomic"
)

// Dispatcher delivers events to connections. Delivery is fire and forget:
// a connection that is closed or cannot accept more data is skipped.
type Dispatcher struct {
	dir     *Directory
	peers   Peers
	log     *slog.Logger
	relayed atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher returns a Dispatcher resolving rooms through dir and the
// process-wide connection set through peers.
func NewDispatcher(dir *Directory, peers Peers, log *slog.Logger) *Dispatcher {
	return &Dispatcher{dir: dir, peers: peers, log: log}
}

// ToRoom sends e to every connection currently in the room. A room that no
// longer exists has no recipients.
func (d *Dispatcher) ToRoom(room string, e Event) {
	d.deliver(d.dir.Conns(room), e)
}

// ToAll sends e to every open connection.
func (d *Dispatcher) ToAll(e Event) {
	d.deliver(d.peers.Snapshot(), e)
}

// ToConn sends e to a single connection.
func (d *Dispatcher) ToConn(c Conn, e Event) {
	d.deliver([]Conn{c}, e)
}

func (d *Dispatcher) deliver(targets []Conn, e Event) {
	if len(targets) == 0 {
		return
	}
	payload, err := Encode(e)
	if err != nil {
		d.log.Error("Dropping unencodable event", "type", e.EventType(), "err", err)
		return
	}
	for _, c := range targets {
		if c.Send(payload) {
			d.relayed.Add(1)
			continue
		}
		d.dropped.Add(1)
		d.log.Debug("Skipped delivery to unavailable connection", "conn", c.ID(), "type", e.EventType())
	}
}

// Relayed returns how many frames have been queued for delivery.
func (d *Dispatcher) Relayed() uint64 { return d.relayed.Load() }

// Dropped returns how many frames were skipped because the target could not
// accept them.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
