// Package server defines the JSON payloads of the HTTP API and utility
// helpers shared by client and hub logic.
package server

import "strings"

// credentialsRequest is the body of /api/register and /api/login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type loginResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
