package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores returns every implementation so the contract tests run against both.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Open("known_devices", false)
			require.NoError(t, err)
			require.NoError(t, w.PutInt("count", 2))
			require.NoError(t, w.PutString("mac0", "AA:BB:CC:DD:EE:FF"))
			require.NoError(t, w.Close())

			r, err := s.Open("known_devices", true)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, 2, r.GetInt("count", 0))
			assert.Equal(t, "AA:BB:CC:DD:EE:FF", r.GetString("mac0", ""))
			assert.Equal(t, "fallback", r.GetString("mac1", "fallback"))
			assert.Equal(t, -80, r.GetInt("threshold0", -80))
		})
	}
}

func TestReadOnlySessionRejectsWrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r, err := s.Open("ns", true)
			require.NoError(t, err)
			defer r.Close()
			assert.ErrorIs(t, r.PutString("k", "v"), ErrReadOnly)
			assert.ErrorIs(t, r.PutInt("k", 1), ErrReadOnly)
			assert.ErrorIs(t, r.Clear(), ErrReadOnly)
		})
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a, err := s.Open("a", false)
			require.NoError(t, err)
			require.NoError(t, a.PutString("id", "one"))
			require.NoError(t, a.Close())

			b, err := s.Open("b", false)
			require.NoError(t, err)
			require.NoError(t, b.PutString("id", "two"))
			require.NoError(t, b.Clear())
			require.NoError(t, b.Close())

			r, err := s.Open("a", true)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, "one", r.GetString("id", ""))
		})
	}
}

func TestClearRemovesNamespaceKeys(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Open("ns", false)
			require.NoError(t, err)
			require.NoError(t, w.PutString("k", "v"))
			require.NoError(t, w.Close())

			w, err = s.Open("ns", false)
			require.NoError(t, err)
			require.NoError(t, w.Clear())
			require.NoError(t, w.Close())

			r, err := s.Open("ns", true)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, "", r.GetString("k", ""))
		})
	}
}

func TestGetIntNonNumericFallsBack(t *testing.T) {
	m := NewMemory()
	m.Set("ns", "count", "garbage")
	r, err := m.Open("ns", true)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 7, r.GetInt("count", 7))
}

func TestSessionDoubleClose(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Open("ns", false)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			assert.ErrorIs(t, w.Close(), ErrClosed)
			assert.ErrorIs(t, w.PutString("k", "v"), ErrClosed)
		})
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Open("ns", false)
			require.NoError(t, err)
			require.NoError(t, w.PutString("k", "old"))
			require.NoError(t, w.Close())

			w, err = s.Open("ns", false)
			require.NoError(t, err)
			require.NoError(t, w.Clear())
			require.NoError(t, w.PutString("k", "new"))
			require.NoError(t, w.Abort())
			assert.ErrorIs(t, w.Abort(), ErrClosed)
			assert.ErrorIs(t, w.Close(), ErrClosed)

			r, err := s.Open("ns", true)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, "old", r.GetString("k", ""))
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	w, err := s.Open("node", false)
	require.NoError(t, err)
	require.NoError(t, w.PutString("id", "node-1"))
	require.NoError(t, w.Close())
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	r, err := s.Open("node", true)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "node-1", r.GetString("id", ""))
}
