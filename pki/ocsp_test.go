package pki_test

import (
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/jmcleod/certforge/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"
)

func TestSignOCSPResponses(t *testing.T) {
	authority := newTestAuthority(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := pki.NewRegistry(pki.WithRevocationClock(func() time.Time { return fixed }))

	responder, err := authority.Issue(pkix.Name{CommonName: "responder"}, pki.ECP256, pki.ProfileOCSPResponder, 365)
	require.NoError(t, err)

	good := issueTestCert(t, authority, "door1")
	bad := issueTestCert(t, authority, "revoked-user3")
	require.NoError(t, registry.Record(responder, pki.StatusValid))
	require.NoError(t, registry.Record(good, pki.StatusValid))
	require.NoError(t, registry.Record(bad, pki.StatusValid))
	require.NoError(t, registry.Revoke(bad.Serial))

	responses, err := pki.SignOCSPResponses(registry, authority, responder)
	require.NoError(t, err)
	require.Len(t, responses, 3, "one response per recorded serial")

	statuses := make(map[string]int)
	for _, signed := range responses {
		parsed, err := ocsp.ParseResponse(signed.DER, authority.Certificate())
		require.NoError(t, err, "response must verify against the issuing authority")
		assert.Zero(t, parsed.SerialNumber.Cmp(signed.Serial))
		statuses[pki.SerialHex(signed.Serial)] = parsed.Status
	}

	assert.Equal(t, ocsp.Good, statuses[pki.SerialHex(good.Serial)])
	assert.Equal(t, ocsp.Good, statuses[pki.SerialHex(responder.Serial)])
	assert.Equal(t, ocsp.Revoked, statuses[pki.SerialHex(bad.Serial)])
}

func TestSignOCSPResponses_RevokedDetails(t *testing.T) {
	authority := newTestAuthority(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := pki.NewRegistry(pki.WithRevocationClock(func() time.Time { return fixed }))

	responder, err := authority.Issue(pkix.Name{CommonName: "responder"}, pki.ECP256, pki.ProfileOCSPResponder, 365)
	require.NoError(t, err)
	bad := issueTestCert(t, authority, "revoked-user3")
	require.NoError(t, registry.Record(bad, pki.StatusValid))
	require.NoError(t, registry.Revoke(bad.Serial))

	responses, err := pki.SignOCSPResponses(registry, authority, responder)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	parsed, err := ocsp.ParseResponse(responses[0].DER, authority.Certificate())
	require.NoError(t, err)
	assert.Equal(t, ocsp.Revoked, parsed.Status)
	assert.True(t, parsed.RevokedAt.Equal(fixed))
}

func TestSignOCSPResponses_SkipsOtherAuthorities(t *testing.T) {
	root := newTestAuthority(t)
	sub, err := pki.NewAuthority("ca_user", pkix.Name{CommonName: "Test User CA"}, pki.ECP256, 3650, root)
	require.NoError(t, err)

	registry := pki.NewRegistry()
	responder, err := root.Issue(pkix.Name{CommonName: "responder"}, pki.ECP256, pki.ProfileOCSPResponder, 365)
	require.NoError(t, err)
	subLeaf, err := sub.Issue(pkix.Name{CommonName: "user1"}, pki.ECP256, pki.ProfileSigning, 365)
	require.NoError(t, err)
	require.NoError(t, registry.Record(subLeaf, pki.StatusValid))

	responses, err := pki.SignOCSPResponses(registry, root, responder)
	require.NoError(t, err)
	assert.Empty(t, responses, "root responder must not answer for the user CA's serials")
}
