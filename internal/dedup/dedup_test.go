package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	leads   map[string]*model.Lead
	lookups int
	err     error
}

func (f *fakeFinder) FindLeadByProfileURL(_ context.Context, url string) (*model.Lead, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	if l, ok := f.leads[url]; ok {
		return l, nil
	}
	return nil, persistence.ErrNotFound
}

func TestExists(t *testing.T) {
	finder := &fakeFinder{leads: map[string]*model.Lead{
		"https://www.linkedin.com/in/jane": {Name: "Jane"},
	}}
	d := New(finder)
	ctx := context.Background()

	ok, err := d.Exists(ctx, "https://www.linkedin.com/in/jane")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "https://www.linkedin.com/in/john")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsIsIdempotent(t *testing.T) {
	d := New(&fakeFinder{leads: map[string]*model.Lead{"a": {}}})
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		first, err := d.Exists(ctx, id)
		require.NoError(t, err)
		second, err := d.Exists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, second, id)
	}
}

func TestEmptyIdentifierNeverDuplicate(t *testing.T) {
	finder := &fakeFinder{leads: map[string]*model.Lead{"": {}}}
	d := New(finder)

	for _, id := range []string{"", "   "} {
		ok, err := d.Exists(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Zero(t, finder.lookups)
}

func TestExistsPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	d := New(&fakeFinder{err: boom})

	_, err := d.Exists(context.Background(), "x")
	require.ErrorIs(t, err, boom)
}
