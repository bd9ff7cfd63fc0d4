package netname

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bridgeRe = regexp.MustCompile(`^obr[0-9a-f]{10}$`)
var tapRe = regexp.MustCompile(`^otp[0-9a-f]{10}$`)

func TestNameDeterminism(t *testing.T) {
	for i := 0; i < 200; i++ {
		u := uuid.New()

		bridge := BridgeName(u)
		tap := TapName(u)

		require.Len(t, bridge, 13)
		require.Len(t, tap, 13)
		assert.Regexp(t, bridgeRe, bridge)
		assert.Regexp(t, tapRe, tap)

		// Depend only on the UUID: calling again yields the identical name.
		assert.Equal(t, bridge, BridgeName(u))
		assert.Equal(t, tap, TapName(u))
	}
}

func TestNamesDifferAcrossLabs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, BridgeName(a), BridgeName(b))
	assert.NotEqual(t, TapName(a), TapName(b))
}

func TestBridgeAndTapNeverCollide(t *testing.T) {
	u := uuid.New()
	assert.NotEqual(t, BridgeName(u), TapName(u))
}
