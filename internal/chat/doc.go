// Package chat implements the room chat protocol: the identity registry, the
// room directory, the broadcast dispatcher and the per-connection session
// state machine that drives them.
//
// The package knows nothing about WebSockets. A transport starts a session
// with Relay.NewSession for each live connection, delivers Relay.RoomsList to
// it first, feeds inbound frames to Session.HandleFrame and calls
// Session.Close once the connection is gone.
package chat
