package routing

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltDBStore(t *testing.T) {
	dbfile, err := ioutil.TempFile("", "rtables.db")
	require.NoError(t, err)

	defer func() {
		require.NoError(t, os.Remove(dbfile.Name()))
	}()

	s, err := BoltDBStore(dbfile.Name())
	require.NoError(t, err)

	StoreSuite(t, s)
	require.NoError(t, s.Close())

	// Tables survive a reopen.
	s, err = BoltDBStore(dbfile.Name())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, lineTable(0, 3), s.Get(0))
	assert.Equal(t, 2, s.Get(1).NextHop(1, 2))
}
