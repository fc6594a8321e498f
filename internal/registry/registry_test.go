package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRejectsDuplicateSource(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(NewPair("/src", "/tgt1")))
	err := r.Insert(NewPair("/src", "/tgt2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFindReturnsRegisteredPair(t *testing.T) {
	r := New()
	p := NewPair("/src", "/tgt")
	require.NoError(t, r.Insert(p))

	found, ok := r.Find("/src")
	require.True(t, ok)
	assert.Same(t, p, found)

	_, ok = r.Find("/missing")
	assert.False(t, ok)
}

func TestMarkInactiveClearsActiveAndWatch(t *testing.T) {
	r := New()
	p := NewPair("/src", "/tgt")
	p.SetWatchID(42)
	require.NoError(t, r.Insert(p))

	_, err := r.MarkInactive("/src")
	require.NoError(t, err)
	assert.False(t, p.Active())
	assert.Nil(t, p.WatchID())

	_, err = r.MarkInactive("/nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReactivateFlipsActive(t *testing.T) {
	r := New()
	p := NewPair("/src", "/tgt")
	require.NoError(t, r.Insert(p))
	_, _ = r.MarkInactive("/src")
	require.False(t, p.Active())

	_, err := r.Reactivate("/src")
	require.NoError(t, err)
	assert.True(t, p.Active())
}

func TestUpdateAfterWorkerTracksErrors(t *testing.T) {
	r := New()
	p := NewPair("/src", "/tgt")
	require.NoError(t, r.Insert(p))

	require.NoError(t, r.UpdateAfterWorker("/src", true))
	assert.Equal(t, uint64(0), p.ErrorCount())
	assert.False(t, p.LastSyncTime().IsZero())

	require.NoError(t, r.UpdateAfterWorker("/src", false))
	assert.Equal(t, uint64(1), p.ErrorCount())
}

func TestRemoveDropsPairAndOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(NewPair("/a", "/ta")))
	require.NoError(t, r.Insert(NewPair("/b", "/tb")))
	require.NoError(t, r.Insert(NewPair("/c", "/tc")))

	r.Remove("/b")

	_, ok := r.Find("/b")
	assert.False(t, ok)

	var sources []string
	for _, p := range r.List() {
		sources = append(sources, p.SourcePath)
	}
	assert.Equal(t, []string{"/a", "/c"}, sources)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := New()
	for _, s := range []string{"/z", "/a", "/m"} {
		require.NoError(t, r.Insert(NewPair(s, s+"-tgt")))
	}
	var sources []string
	for _, p := range r.List() {
		sources = append(sources, p.SourcePath)
	}
	assert.Equal(t, []string{"/z", "/a", "/m"}, sources)
}
