// Package server implements the HTTP and WebSocket transport for the chat relay.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, metrics, and HTTP handlers. The protocol
// itself lives in package chat; this package only moves frames between
// sockets and sessions.
package server
