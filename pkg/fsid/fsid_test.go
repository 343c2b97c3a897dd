package fsid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOpenGeneratesOnMkfs(t *testing.T) {
	root := t.TempDir()
	p, err := Open(root, true, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NotEqual(t, uuid.Nil, p.FSID())
}

func TestOpenPersistsAcrossMounts(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	id := p1.FSID()
	require.NoError(t, p1.Close())

	p2, err := Open(root, false, nil)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, id, p2.FSID())
}

func TestOpenDetectsMismatch(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	wrong := uuid.New()
	_, err = Open(root, false, &wrong)
	require.Error(t, err)
}

func TestSecondMountFailsInUse(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	defer p1.Close()

	_, err = Open(root, false, nil)
	require.Error(t, err)
}

func TestCloseReleasesLock(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	id := p1.FSID()
	require.NoError(t, p1.Close())

	p2, err := Open(root, false, nil)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, id, p2.FSID())
}

func TestProbeReportsInUse(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	defer p1.Close()

	inUse, err := Probe(root)
	require.NoError(t, err)
	require.True(t, inUse)
}

func TestProbeReportsFreeAfterClose(t *testing.T) {
	root := t.TempDir()
	p1, err := Open(root, true, nil)
	require.NoError(t, err)
	require.NoError(t, p1.Close())

	inUse, err := Probe(root)
	require.NoError(t, err)
	require.False(t, inUse)
}

func TestProbeOnUnformattedStore(t *testing.T) {
	root := t.TempDir()
	inUse, err := Probe(root)
	require.NoError(t, err)
	require.False(t, inUse)
}
