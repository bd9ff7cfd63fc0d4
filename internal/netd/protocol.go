// Package netd implements the privileged network daemon: a UNIX-socket
// JSON protocol for creating and destroying per-lab Linux bridges, TAP
// devices, and NAT rules. Only this package touches netlink/iptables;
// everything else reaches the kernel through the Client.
package netd

import "encoding/json"

// Request is one JSON object, framed as a single line, per connection.
type Request struct {
	Op    string `json:"op"`
	LabID string `json:"lab_id,omitempty"`
}

// Response mirrors the wire contract: exactly one of Result/Error is set.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is the {code, message} error shape.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeInvalidArgument    = "invalid_argument"
	CodeNotFound           = "not_found"
	CodePreconditionFailed = "precondition_failed"
	CodeInternal           = "internal"
)

// CreateResult is the "result" payload of a successful create.
type CreateResult struct {
	Bridge string `json:"bridge"`
	Tap    string `json:"tap"`
}

// DestroyResult is the "result" payload of a successful destroy.
type DestroyResult struct {
	BridgeDeleted string `json:"bridge_deleted"`
	TapDeleted    string `json:"tap_deleted"`
}

// PingResult is returned for {"op":"ping"}.
type PingResult struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}
