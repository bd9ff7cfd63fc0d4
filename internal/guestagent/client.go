package guestagent

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mdlayher/vsock"
)

// Client dials a single VM's guest agent over vsock using the VM's CID.
type Client struct {
	CID     uint32
	Port    uint32
	Token   string
	Timeout time.Duration
}

// NewClient builds a Client with the 10s vsock request timeout from spec.md §5.
func NewClient(cid uint32, token string) *Client {
	return &Client{CID: cid, Port: DefaultPort, Token: token, Timeout: 10 * time.Second}
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	req.Token = c.Token

	conn, err := vsock.Dial(c.CID, c.Port, nil)
	if err != nil {
		return Response{}, fmt.Errorf("dialing guest agent: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	raw, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	raw = append(raw, '\n')
	if _, err := conn.Write(raw); err != nil {
		return Response{}, fmt.Errorf("writing guest agent request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("reading guest agent response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding guest agent response: %w", err)
	}
	return resp, nil
}

// Ping checks whether the guest agent is answering yet; used to detect
// VM boot completion within boot_timeout.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, Request{Op: "ping"})
	if err != nil {
		return err
	}
	return wireErr(resp)
}

// UploadProject base64-encodes bundle and sends it as upload_project.
func (c *Client) UploadProject(ctx context.Context, bundle []byte) (UploadResult, error) {
	resp, err := c.roundTrip(ctx, Request{Op: "upload_project", Bundle: base64.StdEncoding.EncodeToString(bundle)})
	if err != nil {
		return UploadResult{}, err
	}
	if err := wireErr(resp); err != nil {
		return UploadResult{}, err
	}
	var result UploadResult
	_ = json.Unmarshal(resp.Result, &result)
	return result, nil
}

func (c *Client) ComposeUp(ctx context.Context) (ComposeUpResult, error) {
	resp, err := c.roundTrip(ctx, Request{Op: "compose_up"})
	if err != nil {
		return ComposeUpResult{}, err
	}
	if err := wireErr(resp); err != nil {
		return ComposeUpResult{}, err
	}
	var result ComposeUpResult
	_ = json.Unmarshal(resp.Result, &result)
	return result, nil
}

func (c *Client) ComposeDown(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, Request{Op: "compose_down"})
	if err != nil {
		return err
	}
	return wireErr(resp)
}

func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	resp, err := c.roundTrip(ctx, Request{Op: "status"})
	if err != nil {
		return StatusResult{}, err
	}
	if err := wireErr(resp); err != nil {
		return StatusResult{}, err
	}
	var result StatusResult
	_ = json.Unmarshal(resp.Result, &result)
	return result, nil
}

func wireErr(resp Response) error {
	if resp.OK {
		return nil
	}
	if resp.Error == nil {
		return fmt.Errorf("guest agent: unspecified error")
	}
	return fmt.Errorf("guest agent: %s: %s", resp.Error.Code, resp.Error.Message)
}
