package netd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// dispatch's argument validation must reject malformed lab_id values
// before any netlink/iptables call is attempted, per spec.md §4.5's "no
// other client-controlled data influences shell commands" rule. This
// is exercised directly against dispatch's validation branch; manager
// is left nil deliberately so a bug that skips validation panics the
// test instead of silently touching the host network stack.
func TestDispatchRejectsNonUUIDLabIDs(t *testing.T) {
	s := &Server{}
	dangerous := []string{"", "not-a-uuid", "; rm -rf /", "../../etc/passwd", "a b c"}

	for _, op := range []string{"create", "destroy"} {
		for _, labID := range dangerous {
			resp := s.dispatch(context.Background(), Request{Op: op, LabID: labID})
			assert.False(t, resp.OK, "op=%s lab_id=%q should be rejected", op, labID)
			if assert.NotNil(t, resp.Error) {
				assert.Equal(t, CodeInvalidArgument, resp.Error.Code)
			}
		}
	}
}

func TestDispatchUnknownOp(t *testing.T) {
	s := &Server{}
	resp := s.dispatch(context.Background(), Request{Op: "delete_everything"})
	assert.False(t, resp.OK)
	assert.Equal(t, CodeInvalidArgument, resp.Error.Code)
}

func TestDispatchPing(t *testing.T) {
	s := &Server{}
	resp := s.dispatch(context.Background(), Request{Op: "ping"})
	assert.True(t, resp.OK)
}
