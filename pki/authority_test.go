package pki_test

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/jmcleod/certforge/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAuthority creates a root EC authority; EC keeps key generation
// cheap in tests.
func newTestAuthority(t *testing.T) *pki.Authority {
	t.Helper()
	authority, err := pki.NewAuthority("ca", pkix.Name{
		CommonName:   "Test Root CA",
		Organization: []string{"TestOrg"},
		Country:      []string{"US"},
	}, pki.ECP256, 3650, nil)
	require.NoError(t, err)
	return authority
}

func TestNewAuthority_Root(t *testing.T) {
	authority := newTestAuthority(t)
	cert := authority.Certificate()

	assert.True(t, cert.IsCA)
	assert.Equal(t, x509.KeyUsageCertSign|x509.KeyUsageCRLSign, cert.KeyUsage)
	assert.Equal(t, "Test Root CA", cert.Subject.CommonName)
	assert.Equal(t, cert.Subject.CommonName, cert.Issuer.CommonName, "root is self-signed")
	assert.Equal(t, int64(1), cert.SerialNumber.Int64())

	err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature)
	assert.NoError(t, err, "root certificate must verify against its own key")

	assert.Contains(t, string(authority.CertificatePEM()), "BEGIN CERTIFICATE")
}

func TestNewAuthority_Subordinate(t *testing.T) {
	root := newTestAuthority(t)
	sub, err := pki.NewAuthority("ca_user", pkix.Name{CommonName: "Test User CA"}, pki.ECP256, 3650, root)
	require.NoError(t, err)

	cert := sub.Certificate()
	assert.True(t, cert.IsCA)
	assert.True(t, bytes.Equal(cert.RawIssuer, root.Certificate().RawSubject),
		"subordinate issuer must match parent subject exactly")
	assert.NoError(t, cert.CheckSignatureFrom(root.Certificate()))

	// The subordinate's certificate consumed a serial from the parent's
	// allocator.
	assert.Equal(t, int64(0x1000), cert.SerialNumber.Int64())
}

func TestIssue_SerialsStrictlyIncreasing(t *testing.T) {
	authority := newTestAuthority(t)

	var previous int64
	for i := 0; i < 3; i++ {
		cert, err := authority.Issue(pkix.Name{CommonName: "leaf"}, pki.ECP256, pki.ProfileServerAuth, 365)
		require.NoError(t, err)
		serial := cert.Serial.Int64()
		if i == 0 {
			assert.Equal(t, int64(0x1000), serial, "serial counter starts at the configured base")
		} else {
			assert.Greater(t, serial, previous)
		}
		previous = serial
	}
}

func TestIssue_IssuerMatchesAuthoritySubject(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "door1"}, pki.ECP256, pki.ProfileServerAuth, 365)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(cert.X509.RawIssuer, authority.Certificate().RawSubject))
	assert.NoError(t, cert.X509.CheckSignatureFrom(authority.Certificate()))
}

func TestIssue_ServerAuthProfile(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "door1"}, pki.ECP256, pki.ProfileServerAuth, 365)
	require.NoError(t, err)

	assert.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, cert.X509.KeyUsage)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, cert.X509.ExtKeyUsage)
	assert.Equal(t, []string{"door1"}, cert.X509.DNSNames)
	assert.Equal(t, []string{pki.DefaultOCSPURL}, cert.X509.OCSPServer)
}

func TestIssue_MinimalProfileHasZeroExtensions(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "bare"}, pki.ECP256, pki.ProfileMinimal, 365)
	require.NoError(t, err)

	assert.Empty(t, cert.X509.Extensions, "minimal profile must not carry any extension")
	assert.NoError(t, cert.X509.CheckSignatureFrom(authority.Certificate()))
}

func TestIssue_SANFullProfile(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "idcheck"}, pki.ECP256, pki.ProfileSANFull, 365)
	require.NoError(t, err)

	assert.Equal(t, []string{"idcheck"}, cert.X509.DNSNames)
	assert.Equal(t, []string{"idcheck@example.com"}, cert.X509.EmailAddresses)
	require.Len(t, cert.X509.URIs, 1)
	assert.Equal(t, "uuid", cert.X509.URIs[0].Scheme)

	// The UPN otherName is invisible to the stdlib parser; check the raw
	// SAN extension carries its OID.
	upnOID, err := asn1.Marshal(asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2, 3})
	require.NoError(t, err)
	sanOID := asn1.ObjectIdentifier{2, 5, 29, 17}
	var found bool
	for _, ext := range cert.X509.Extensions {
		if ext.Id.Equal(sanOID) {
			found = true
			assert.True(t, bytes.Contains(ext.Value, upnOID), "SAN extension must carry the UPN otherName")
		}
	}
	assert.True(t, found, "SAN extension missing")
}

func TestIssue_OCSPResponderProfile(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "responder"}, pki.ECP256, pki.ProfileOCSPResponder, 365)
	require.NoError(t, err)

	assert.Contains(t, cert.X509.ExtKeyUsage, x509.ExtKeyUsageOCSPSigning)
	assert.Empty(t, cert.X509.OCSPServer, "responder must not carry an AIA pointer")

	ekuOID := asn1.ObjectIdentifier{2, 5, 29, 37}
	var critical bool
	for _, ext := range cert.X509.Extensions {
		if ext.Id.Equal(ekuOID) {
			critical = ext.Critical
		}
	}
	assert.True(t, critical, "extendedKeyUsage must be critical for the responder")
}

func TestIssue_NoOCSPURIProfile(t *testing.T) {
	authority := newTestAuthority(t)
	cert, err := authority.Issue(pkix.Name{CommonName: "door9"}, pki.ECP256, pki.ProfileNoOCSPURI, 365)
	require.NoError(t, err)

	assert.Empty(t, cert.X509.OCSPServer)
	aiaOID := asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	for _, ext := range cert.X509.Extensions {
		assert.False(t, ext.Id.Equal(aiaOID), "no-ocsp-uri must not carry authorityInfoAccess")
	}
}

func TestIssue_ProfileRequiresEC(t *testing.T) {
	authority := newTestAuthority(t)
	_, err := authority.Issue(pkix.Name{CommonName: "reader1"}, pki.RSA2048, pki.ProfileClientServerAuth, 365)
	assert.ErrorIs(t, err, pki.ErrProfileApplication)
}

func TestIssue_UnknownProfile(t *testing.T) {
	authority := newTestAuthority(t)
	_, err := authority.Issue(pkix.Name{CommonName: "x"}, pki.ECP256, "nonexistent", 365)
	assert.ErrorIs(t, err, pki.ErrUnknownProfile)
}

func TestNewAuthority_DeterministicBytes(t *testing.T) {
	seed := sha256.Sum256([]byte("authority-seed"))
	epoch := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	build := func() *pki.Authority {
		authority, err := pki.NewAuthority("ca", pkix.Name{CommonName: "Repeatable CA"},
			pki.ECP256, 365, nil,
			pki.WithKeyProvider(pki.NewDeterministicKeyProvider(seed)),
			pki.WithClock(func() time.Time { return epoch }),
		)
		require.NoError(t, err)
		return authority
	}

	first := build()
	second := build()
	assert.Equal(t, first.CertificatePEM(), second.CertificatePEM(),
		"same seed and clock must reproduce the authority certificate byte for byte")

	leafA, err := first.Issue(pkix.Name{CommonName: "leaf1"}, pki.ECP256, pki.ProfileServerAuth, 365)
	require.NoError(t, err)
	leafB, err := second.Issue(pkix.Name{CommonName: "leaf1"}, pki.ECP256, pki.ProfileServerAuth, 365)
	require.NoError(t, err)
	assert.Equal(t, leafA.PEM(), leafB.PEM(),
		"issued certificates must reproduce byte for byte")
	keyA, err := leafA.KeyPEM()
	require.NoError(t, err)
	keyB, err := leafB.KeyPEM()
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)
}

func TestIssue_ChainVerifies(t *testing.T) {
	root := newTestAuthority(t)
	sub, err := pki.NewAuthority("ca_user", pkix.Name{CommonName: "Test User CA"}, pki.ECP256, 3650, root)
	require.NoError(t, err)

	leaf, err := sub.Issue(pkix.Name{CommonName: "user1"}, pki.ECP256, pki.ProfileSigning, 365)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(root.Certificate())
	intermediates := x509.NewCertPool()
	intermediates.AddCert(sub.Certificate())

	_, err = leaf.X509.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	assert.NoError(t, err)
}
