// Package server implements the chat relay: a TCP listener that accepts
// clients, a per-connection handler that performs the username handshake
// and receive loop, a Registry of live sessions, and a Hub that broadcasts,
// routes direct messages and answers commands.
//
// An optional HTTP gateway exposes a health endpoint and lets WebSocket
// clients join the same chat. The implementation is organized into
// specialized files for configuration, registry, hub, handler, transports
// and HTTP handlers.
package server
