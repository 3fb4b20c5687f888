package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlist_EmptyAdmitsEveryone(t *testing.T) {
	a, err := New(nil, nil)
	require.NoError(t, err)
	assert.True(t, a.Open())
	assert.True(t, a.IsAllowed(42))
}

func TestAllowlist_InitialIDs(t *testing.T) {
	a, err := New(nil, []int64{1, 2})
	require.NoError(t, err)
	assert.False(t, a.Open())
	assert.True(t, a.IsAllowed(1))
	assert.False(t, a.IsAllowed(3))

	require.NoError(t, a.Upsert(User{ID: 3, Username: "carol"}))
	assert.True(t, a.IsAllowed(3))
	require.NoError(t, a.Remove(1))
	assert.False(t, a.IsAllowed(1))
	assert.Equal(t, []User{{ID: 2}, {ID: 3, Username: "carol"}}, a.List())
}

func TestFileRepository_PersistsAcrossInstances(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data", "allowlist.json")
	repo, err := NewFileRepository(p)
	require.NoError(t, err)

	a, err := New(repo, []int64{10})
	require.NoError(t, err)
	require.NoError(t, a.Upsert(User{ID: 20, Username: "bob"}))
	require.NoError(t, a.Upsert(User{ID: 20, Username: "bobby"}))
	require.NoError(t, a.Upsert(User{ID: 30}))
	require.NoError(t, a.Remove(30))

	repo2, err := NewFileRepository(p)
	require.NoError(t, err)
	users, err := repo2.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []User{{ID: 20, Username: "bobby"}}, users)
}

func TestFileRepository_MalformedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "allowlist.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))
	repo, err := NewFileRepository(p)
	require.NoError(t, err)

	_, err = New(repo, nil)
	require.Error(t, err)
}
