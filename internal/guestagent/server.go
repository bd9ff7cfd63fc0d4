package guestagent

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mdlayher/vsock"
)

const projectDir = "/var/lib/octolab/project"

// Server is the in-VM vsock listener. It never opens outbound
// connections; every operation is a request the host initiates.
type Server struct {
	token string
	ln    net.Listener
}

// Listen binds the agent to the given vsock port on this VM's CID.
func Listen(port uint32, token string) (*Server, error) {
	ln, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("listening on vsock port %d: %w", port, err)
	}
	return &Server{token: token, ln: ln}, nil
}

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
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(conn, errResp(CodeInvalidArgument, "malformed json"))
		return
	}

	if !s.validToken(req.Token) {
		writeResponse(conn, errResp(CodeUnauthenticated, "token mismatch"))
		return
	}

	writeResponse(conn, s.dispatch(req))
}

func (s *Server) validToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case "ping":
		return okResp(map[string]bool{"ok": true})
	case "upload_project":
		return s.uploadProject(req.Bundle)
	case "compose_up":
		return composeUp()
	case "compose_down":
		return composeDown()
	case "status":
		return composeStatus()
	default:
		return errResp(CodeInvalidArgument, fmt.Sprintf("unknown op %q", req.Op))
	}
}

// uploadProject extracts bundle (base64 tar.gz) into projectDir,
// replacing it atomically via a staged directory + rename, and
// rejecting anything over MaxBundleSize before touching the filesystem.
func (s *Server) uploadProject(bundleB64 string) Response {
	raw, err := base64.StdEncoding.DecodeString(bundleB64)
	if err != nil {
		return errResp(CodeInvalidArgument, "bundle is not valid base64")
	}
	if len(raw) > MaxBundleSize {
		return errResp(CodeInvalidArgument, "bundle exceeds maximum size")
	}

	staged := projectDir + ".staging"
	if err := os.RemoveAll(staged); err != nil {
		return errResp(CodeInternal, "failed clearing staging directory")
	}
	if err := os.MkdirAll(staged, 0o700); err != nil {
		return errResp(CodeInternal, "failed creating staging directory")
	}
	if err := extractTarGz(raw, staged); err != nil {
		_ = os.RemoveAll(staged)
		return errResp(CodeInvalidArgument, "failed extracting bundle")
	}

	if err := os.RemoveAll(projectDir); err != nil {
		return errResp(CodeInternal, "failed removing previous project")
	}
	if err := os.Rename(staged, projectDir); err != nil {
		return errResp(CodeInternal, "failed activating new project")
	}

	return okResp(UploadResult{BytesWritten: len(raw)})
}

func composeUp() Response {
	cmd := exec.Command("docker", "compose", "-f", filepath.Join(projectDir, "docker-compose.yml"), "up", "-d")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errResp(CodeInternal, fmt.Sprintf("compose up failed: %v: %s", err, out))
	}
	names, err := composePs()
	if err != nil {
		return errResp(CodeInternal, "compose up succeeded but listing containers failed")
	}
	return okResp(ComposeUpResult{Containers: names})
}

func composeDown() Response {
	cmd := exec.Command("docker", "compose", "-f", filepath.Join(projectDir, "docker-compose.yml"), "down", "-v")
	if out, err := cmd.CombinedOutput(); err != nil {
		return errResp(CodeInternal, fmt.Sprintf("compose down failed: %v: %s", err, out))
	}
	return okResp(map[string]bool{"ok": true})
}

func composeStatus() Response {
	states, err := composeStates()
	if err != nil {
		return errResp(CodeInternal, "failed reading compose status")
	}
	return okResp(StatusResult{Containers: states})
}

func okResp(v interface{}) Response {
	raw, _ := json.Marshal(v)
	return Response{OK: true, Result: raw}
}

func errResp(code, msg string) Response {
	return Response{OK: false, Error: &Error{Code: code, Message: msg}}
}

func writeResponse(conn net.Conn, resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	raw = append(raw, '\n')
	_, _ = conn.Write(raw)
}
