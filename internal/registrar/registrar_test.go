package registrar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringvote/ringvote/internal/wire"
)

func TestRegisterSingleNodeYieldsNoRing(t *testing.T) {
	r := New()
	resp, err := r.Register(5, "http://node5")
	require.NoError(t, err)
	assert.Equal(t, wire.NodeRef{}, resp.Successor)

	err = r.RebuildRing("test")
	var ee *wire.ElectionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, wire.ErrNoSuccessor, ee.Kind)
}

func TestRebuildRingAscendingOrder(t *testing.T) {
	r := New()
	for _, uid := range []int{11, 2, 7, 5} {
		_, err := r.Register(uid, "addr")
		require.NoError(t, err)
	}

	dir := r.Directory()
	bySucc := map[int]int{}
	for _, m := range dir.Members {
		bySucc[m.UID] = m.Successor
	}
	assert.Equal(t, 5, bySucc[2])
	assert.Equal(t, 7, bySucc[5])
	assert.Equal(t, 11, bySucc[7])
	assert.Equal(t, 2, bySucc[11])
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	_, err := r.Register(5, "addr")
	require.NoError(t, err)

	_, err = r.Register(5, "addr2")
	var ee *wire.ElectionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, wire.ErrDuplicateRegistration, ee.Kind)
}

func TestRegisterDuringElectionRejected(t *testing.T) {
	r := New()
	r.BeginElection(false)

	_, err := r.Register(5, "addr")
	var ee *wire.ElectionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, wire.ErrElectionInProgress, ee.Kind)

	r.EndElection()
	_, err = r.Register(5, "addr")
	require.NoError(t, err)
}

func TestTryClaimRecoveryExactlyOneWinner(t *testing.T) {
	r := New()
	first := r.TryClaimRecovery()
	second := r.TryClaimRecovery()
	assert.True(t, first)
	assert.False(t, second)

	r.ReleaseRecovery()
	third := r.TryClaimRecovery()
	assert.True(t, third)
}

func TestExcludeFromRingSkipsNodeWithoutMarkingDead(t *testing.T) {
	r := New()
	for _, uid := range []int{2, 5, 7, 11} {
		_, err := r.Register(uid, "addr")
		require.NoError(t, err)
	}

	r.ExcludeFromRing(11)
	require.NoError(t, r.RebuildRing("recovery"))

	dir := r.Directory()
	for _, m := range dir.Members {
		if m.UID == 7 {
			assert.Equal(t, 2, m.Successor)
		}
		if m.UID == 11 {
			assert.True(t, m.Alive, "excluded node should remain marked alive")
		}
	}
}

func TestEpochIncrementsOnEachRebuild(t *testing.T) {
	r := New()
	r.Register(1, "a")
	before := r.Epoch()
	r.Register(2, "b")
	after := r.Epoch()
	assert.Greater(t, after, before)
}
