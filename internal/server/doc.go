// Package server is the HTTP and WebSocket front end of groupchat.
//
// It serves the chat page, upgrades /ws requests to WebSocket connections,
// wraps each connection in a chat.Handle and hands it to the chat.Hub, which
// owns the session from then on. The implementation is split into files for
// handlers, routing, the connection handle, origin checks and rate limiting.
package server
