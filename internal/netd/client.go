package netd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client dials the netd UNIX socket for a single request/response, per
// the "one request per connection" wire contract.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// NewClient builds a Client with the default 5s RPC timeout from spec.md §5.
func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: 5 * time.Second}
}

func (c *Client) roundTrip(req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return Response{}, fmt.Errorf("dialing netd: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.Timeout))

	raw, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	raw = append(raw, '\n')
	if _, err := conn.Write(raw); err != nil {
		return Response{}, fmt.Errorf("writing netd request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("reading netd response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding netd response: %w", err)
	}
	return resp, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(Request{Op: "ping"})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseErr(resp)
	}
	return nil
}

// Create asks netd to create (or return the existing) bridge/TAP pair for labID.
func (c *Client) Create(labID uuid.UUID) (CreateResult, error) {
	resp, err := c.roundTrip(Request{Op: "create", LabID: labID.String()})
	if err != nil {
		return CreateResult{}, err
	}
	if !resp.OK {
		return CreateResult{}, responseErr(resp)
	}
	var result CreateResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CreateResult{}, fmt.Errorf("decoding create result: %w", err)
	}
	return result, nil
}

// Destroy asks netd to remove the bridge/TAP pair for labID. Idempotent.
func (c *Client) Destroy(labID uuid.UUID) (DestroyResult, error) {
	resp, err := c.roundTrip(Request{Op: "destroy", LabID: labID.String()})
	if err != nil {
		return DestroyResult{}, err
	}
	if !resp.OK {
		return DestroyResult{}, responseErr(resp)
	}
	var result DestroyResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return DestroyResult{}, fmt.Errorf("decoding destroy result: %w", err)
	}
	return result, nil
}

func responseErr(resp Response) error {
	if resp.Error == nil {
		return fmt.Errorf("netd: unspecified error")
	}
	return fmt.Errorf("netd: %s: %s", resp.Error.Code, resp.Error.Message)
}
