package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabStatusCanTransition_TableIsClosed(t *testing.T) {
	all := LabStatus("").Values()
	for _, from := range all {
		for _, to := range all {
			fromS, toS := LabStatus(from), LabStatus(to)
			allowed := fromS.CanTransition(toS)
			_, known := validTransitions[fromS]
			require.True(t, known, "status %q missing from transition table", fromS)
			if fromS == toS {
				assert.False(t, allowed, "a status must never transition to itself: %q", fromS)
			}
		}
	}
}

func TestLabStatusTerminal(t *testing.T) {
	assert.True(t, LabStatusFinished.Terminal())
	assert.False(t, LabStatusFailed.Terminal())
	assert.False(t, LabStatusReady.Terminal())
}

func TestLabStatusCanTransition_KnownEdges(t *testing.T) {
	cases := []struct {
		from, to LabStatus
		want     bool
	}{
		{LabStatusRequested, LabStatusProvisioning, true},
		{LabStatusRequested, LabStatusReady, false},
		{LabStatusReady, LabStatusDegraded, true},
		{LabStatusDegraded, LabStatusReady, true},
		{LabStatusEnding, LabStatusFinished, true},
		{LabStatusEnding, LabStatusProvisioning, false},
		{LabStatusFinished, LabStatusEnding, false},
		{LabStatusFailed, LabStatusEnding, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}
