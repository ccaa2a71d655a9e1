// Package server implements the HTTP and WebSocket transport of ConvoHub.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. Chat semantics live in
// the chat package; this package authenticates connections, runs the
// per-connection pumps, and feeds inbound frames to chat.Service.
package server
