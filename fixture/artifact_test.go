package fixture_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jmcleod/certforge/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannerPlace_MergesDestinations(t *testing.T) {
	planner := fixture.NewPlanner()
	require.NoError(t, planner.Place("ca-crl", fixture.KindRevocation, []byte("crl"), "crl/ca.crl"))
	require.NoError(t, planner.Place("ca-crl", fixture.KindRevocation, []byte("crl"), "ca.crl"))

	artifacts := planner.Artifacts()
	require.Len(t, artifacts, 1)
	assert.ElementsMatch(t, []string{"crl/ca.crl", "ca.crl"}, artifacts[0].Destinations)
}

func TestPlannerPlace_RejectsChangedBytes(t *testing.T) {
	planner := fixture.NewPlanner()
	require.NoError(t, planner.Place("ca-crl", fixture.KindRevocation, []byte("crl-v1"), "crl/ca.crl"))

	err := planner.Place("ca-crl", fixture.KindRevocation, []byte("crl-v2"), "ca.crl")
	assert.ErrorIs(t, err, fixture.ErrArtifactMismatch)
}

func TestPlannerPlace_Conflict(t *testing.T) {
	planner := fixture.NewPlanner()
	require.NoError(t, planner.Place("door1-cert", fixture.KindCertificate, []byte("a"), "door_certs/door1.pem"))

	err := planner.Place("door2-cert", fixture.KindCertificate, []byte("b"), "door_certs/door1.pem")
	assert.ErrorIs(t, err, fixture.ErrPathConflict)
}

func TestPlannerPlace_SamePathTwiceForSameArtifact(t *testing.T) {
	planner := fixture.NewPlanner()
	require.NoError(t, planner.Place("ca-cert", fixture.KindCertificate, []byte("pem"), "certs/ca.pem"))
	require.NoError(t, planner.Place("ca-cert", fixture.KindCertificate, []byte("pem"), "certs/ca.pem"))

	artifacts := planner.Artifacts()
	require.Len(t, artifacts, 1)
	assert.Equal(t, []string{"certs/ca.pem"}, artifacts[0].Destinations)
}

func TestPlannerWriteTo(t *testing.T) {
	root := t.TempDir()
	planner := fixture.NewPlanner()
	require.NoError(t, planner.Place("door1-cert", fixture.KindCertificate, []byte("cert-bytes"),
		"door_certs/door1.pem", "id_check/door1.pem"))
	require.NoError(t, planner.Place("door1-key", fixture.KindPrivateKey, []byte("key-bytes"),
		"door_req/door1.key"))

	require.NoError(t, planner.WriteTo(root))

	first, err := os.ReadFile(filepath.Join(root, "door_certs", "door1.pem"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(root, "id_check", "door1.pem"))
	require.NoError(t, err)
	assert.Equal(t, first, second, "all copies of one artifact must be byte-identical")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(root, "door_req", "door1.key"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "private keys are written 0600")
	}
}
