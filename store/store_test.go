package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/web3tea/binlog-sentinel/capturer"
)

// storeSuite runs the same checks against every Store that works without a server.
type storeSuite struct {
	suite.Suite
	open  func(t *testing.T) Store
	store Store
}

func (s *storeSuite) SetupTest() {
	s.store = s.open(s.T())
}

func (s *storeSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *storeSuite) TestMissingKey() {
	_, err := s.store.Get(context.Background(), "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *storeSuite) TestSetGetDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "k", []byte("v1")))
	s.Require().NoError(s.store.Set(ctx, "k", []byte("v2")))

	v, err := s.store.Get(ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("v2"), v)

	s.Require().NoError(s.store.Delete(ctx, "k"))
	_, err = s.store.Get(ctx, "k")
	s.ErrorIs(err, ErrNotFound)

	// deleting a missing key is fine
	s.NoError(s.store.Delete(ctx, "k"))
}

func (s *storeSuite) TestPosition() {
	ctx := context.Background()

	_, ok, err := LoadPosition(ctx, s.store, "orders")
	s.Require().NoError(err)
	s.False(ok)

	want := capturer.Position{Segment: "mysql-bin.000042", Offset: 1337}
	s.Require().NoError(SavePosition(ctx, s.store, "orders", want))

	got, ok, err := LoadPosition(ctx, s.store, "orders")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(want, got)
}

func (s *storeSuite) TestCorruptPosition() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "orders", []byte("{not json")))

	_, _, err := LoadPosition(ctx, s.store, "orders")
	s.Error(err)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &storeSuite{open: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &storeSuite{open: func(t *testing.T) Store {
		dsn := filepath.Join(t.TempDir(), "state", "sentinel.db")
		s, err := NewSQLiteStore(context.Background(), dsn)
		require.NoError(t, err)
		return s
	}})
}

func TestMemoryStoreCopies(t *testing.T) {
	m := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, m.Set(context.Background(), "k", buf))
	buf[0] = 'x'

	v, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), v)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), "", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), "etcd", "")
	require.Error(t, err)

	_, err = New(context.Background(), "sqlite", "")
	require.Error(t, err)
	_, err = New(context.Background(), "postgres", "")
	require.Error(t, err)
	_, err = New(context.Background(), "yugabyte", "")
	require.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	s := &SQLStore{dialect: postgresDialect}
	s.prepareQueries()
	require.Contains(t, s.setQuery, "VALUES ($1, $2, $3)")

	s = &SQLStore{dialect: sqliteDialect}
	s.prepareQueries()
	require.Contains(t, s.getQuery, "state_key = ?")
}
