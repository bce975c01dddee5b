// Package mcpclient speaks the MCP tool protocol to a remote service
// registry and the services it advertises, normalizing failures into the
// taxonomy of §4.2.
package mcpclient

import (
	"errors"
	"fmt"
)

// RegistryUnavailable means the service registry could not be reached.
// Fatal for discovery-dependent planning (§4.2).
type RegistryUnavailable struct {
	Reason string
}

func (e *RegistryUnavailable) Error() string {
	return fmt.Sprintf("mcp registry unavailable: %s", e.Reason)
}

// ServiceUnavailable is reported per call; it never aborts a batch (§4.2).
type ServiceUnavailable struct {
	ServiceID string
	Reason    string
}

func (e *ServiceUnavailable) Error() string {
	return fmt.Sprintf("mcp service %q unavailable: %s", e.ServiceID, e.Reason)
}

// ProtocolError means the service replied with a malformed response.
// Fatal for the individual call (§4.2).
type ProtocolError struct {
	ServiceID string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp protocol error from %q: %s", e.ServiceID, e.Reason)
}

// ToolError means the service returned a well-formed error. Normalized into
// a document with empty content and an error note in metadata, never
// treated as fatal (§4.2, §7 tool_error).
type ToolError struct {
	ServiceID string
	Message   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool error from %q: %s", e.ServiceID, e.Message)
}

// isTransient reports whether err is the kind of per-call failure
// Invoke's internal retry should retry: connection reset, timeout, or a
// 5xx reported as ServiceUnavailable (§4.2).
func isTransient(err error) bool {
	var su *ServiceUnavailable
	return errors.As(err, &su)
}
