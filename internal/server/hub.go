// Package server coordinates client registration, outbound delivery, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SanjeetWD1419/chat-web/internal/chat"
)

// Hub manages all WebSocket client connections and owns the chat relay they
// share. It maintains client registration/unregistration and ensures
// thread-safe operations through mutex protection.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	relay *chat.Relay
	log   *slog.Logger
}

// NewHub creates and initializes a new Hub instance with all necessary channels,
// an empty client map and a fresh relay. The returned Hub is ready to manage
// WebSocket connections once Run is started.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
	h.relay = chat.NewRelay(h, log)
	return h
}

// Relay returns the chat state shared by every connection of this hub.
func (h *Hub) Relay() *chat.Relay {
	return h.relay
}

// Register hands a client to the run loop, which opens its session and starts
// its pumps. It returns false if the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub and closes its send channel. After
// the run loop has exited the client is removed directly.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

// Snapshot returns the currently registered connections.
func (h *Hub) Snapshot() []chat.Conn {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	conns := make([]chat.Conn, 0, len(h.clients))
	for client := range h.clients {
		conns = append(conns, client)
	}
	return conns
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation so the channel cannot be
	// closed underneath us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}

			clientCount := h.admit(client)
			h.log.Info("Client registered", "addr", client.addr, "id", client.id, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// admit opens the client's session, queues its rooms_list and adds it to the
// client set. The list is read and queued under the same lock that Snapshot
// takes, so rooms_list is the first event on the connection and no later
// rooms_update is missed. It returns the new client count.
func (h *Hub) admit(client *Client) int {
	client.session = h.relay.NewSession(client)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if greeting, err := chat.Encode(h.relay.RoomsList()); err != nil {
		h.log.Error("Error encoding room list", "id", client.id, "err", err)
	} else {
		select {
		case client.send <- greeting:
		default:
			h.log.Warn("Send buffer full before registration", "id", client.id)
		}
	}
	client.closed = false
	h.clients[client] = true
	return len(h.clients)
}

// removeClient deletes the client from the hub and closes its send channel,
// once. It reports whether the client was still registered.
func (h *Hub) removeClient(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	h.log.Info("Client unregistered", "addr", client.addr, "id", client.id, "clients", clientCount)
	return true
}

// removeFailedClients removes clients whose send buffer overflowed. Their
// write pumps then close the connections, which ends their sessions.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "addr", client.addr, "id", client.id)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("Error closing client connection", "addr", client.addr, "err", err)
				}
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
