package netd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"octolab/internal/logger"
)

const socketMode = 0o660

// Server listens on a UNIX domain socket and serves one JSON request
// per accepted connection, per spec.md §4.5.
type Server struct {
	manager *Manager
	ln      net.Listener
}

// Listen binds the daemon's socket at path and sets its mode to
// socketMode (0660). It does not change the socket's owner or group.
func Listen(path string) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, socketMode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	manager, err := NewManager()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return &Server{manager: manager, ln: ln}, nil
}

// Serve accepts connections until ctx is cancelled or the listener
// errors. Each connection is handled in its own goroutine and closed
// after exactly one request/response exchange.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := logger.GetLogger(ctx)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		log.Debug("netd: failed reading request line", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(conn, errorResponse(CodeInvalidArgument, "malformed json"))
		return
	}

	resp := s.dispatch(ctx, req)
	writeResponse(conn, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	ctx = logger.WithFields(ctx, zap.String("op", req.Op), zap.String("lab_id", req.LabID))

	switch req.Op {
	case "ping":
		return okResponse(PingResult{OK: true, Version: "1"})

	case "create":
		labID, err := uuid.Parse(req.LabID)
		if err != nil {
			return errorResponse(CodeInvalidArgument, "lab_id must be a valid uuid")
		}
		bridge, tap, err := s.manager.Create(labID)
		if err != nil {
			logger.GetLogger(ctx).Error("netd: create failed", zap.Error(err))
			return errorResponse(CodeInternal, "failed to create network resources")
		}
		return okResponse(CreateResult{Bridge: bridge, Tap: tap})

	case "destroy":
		labID, err := uuid.Parse(req.LabID)
		if err != nil {
			return errorResponse(CodeInvalidArgument, "lab_id must be a valid uuid")
		}
		bridgeDeleted, tapDeleted, err := s.manager.Destroy(labID)
		if err != nil {
			logger.GetLogger(ctx).Error("netd: destroy failed", zap.Error(err))
			return errorResponse(CodeInternal, "failed to destroy network resources")
		}
		return okResponse(DestroyResult{BridgeDeleted: bridgeDeleted, TapDeleted: tapDeleted})

	default:
		return errorResponse(CodeInvalidArgument, fmt.Sprintf("unknown op %q", req.Op))
	}
}

func okResponse(result interface{}) Response {
	raw, _ := json.Marshal(result)
	return Response{OK: true, Result: raw}
}

func errorResponse(code, message string) Response {
	return Response{OK: false, Error: &WireError{Code: code, Message: message}}
}

func writeResponse(conn net.Conn, resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	raw = append(raw, '\n')
	_, _ = conn.Write(raw)
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}
