package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_AcquireRelease(t *testing.T) {
	g := NewGuard()

	assert.Equal(t, acquired, g.acquire("src_0", ReasonError, true))
	assert.True(t, g.Active("src_0"))
	assert.False(t, g.Active("src_1"))

	_, owed := g.release("src_0")
	assert.False(t, owed)
	assert.False(t, g.Active("src_0"))
}

func TestGuard_SingleRecheck(t *testing.T) {
	g := NewGuard()

	assert.Equal(t, acquired, g.acquire("src_2", ReasonError, true))
	g.begin("src_2", 4)

	assert.Equal(t, deferred, g.acquire("src_2", ReasonTimeout, true))
	assert.Equal(t, coalesced, g.acquire("src_2", ReasonError, true))

	rc, owed := g.release("src_2")
	assert.True(t, owed)
	assert.Equal(t, Recheck{ID: "src_2", Reason: ReasonTimeout, StartGen: 4}, rc)

	_, owed = g.release("src_2")
	assert.False(t, owed)
}

func TestGuard_RecheckNeverDefers(t *testing.T) {
	g := NewGuard()

	g.acquire("src_1", ReasonError, true)
	assert.Equal(t, coalesced, g.acquire("src_1", ReasonTimeout, false))

	_, owed := g.release("src_1")
	assert.False(t, owed)
}

func TestGuard_IndependentIDs(t *testing.T) {
	g := NewGuard()

	assert.Equal(t, acquired, g.acquire("src_0", ReasonError, true))
	assert.Equal(t, acquired, g.acquire("src_1", ReasonError, true))
	g.release("src_0")
	assert.True(t, g.Active("src_1"))
}
