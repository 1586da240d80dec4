package fixture

import "github.com/jmcleod/certforge/pki"

// Authority IDs in the default plan.
const (
	AuthorityRoot    = "ca"
	AuthorityUser    = "ca_user"
	AuthorityUnknown = "ca_unknown"
)

// AuthorityPlan declares one CA to derive: its subject CN, key
// algorithm, optional parent, serial base, and where its certificate
// and key are written. BundleDirs lists the cas/ directories the CA
// certificate is copied into (plain and hash-indexed).
type AuthorityPlan struct {
	ID         string
	CommonName string
	Parent     string // parent authority ID; empty for self-signed roots
	Algorithm  pki.KeyAlgorithm
	SerialBase int64
	CertDests  []string
	KeyDests   []string
	BundleDirs []string
	CRLDests   []string // empty when the plan emits no CRL for this CA
}

// LeafPlan declares one leaf certificate: subject, profile, algorithm,
// revocation status, and destinations. Record is false only for leaves
// of the stranger CA, which must stay absent from the OCSP index so
// responders answer "unknown" for them.
type LeafPlan struct {
	Name      string
	Authority string
	Profile   string
	Algorithm pki.KeyAlgorithm
	Revoke    bool
	Record    bool
	CertDests []string
	KeyDests  []string
}

// Plan is the whole declarative fixture plan the generator evaluates.
// The many "issue one certificate, copy it to N directories" steps are
// all entries in this one table, evaluated by one issuance routine.
type Plan struct {
	Authorities []AuthorityPlan
	Leaves      []LeafPlan

	// OCSPResponders maps an authority ID to the leaf whose
	// certificate signs that authority's pre-built OCSP responses. The
	// leaf must be an ocsp-responder profile certificate issued by the
	// same authority.
	OCSPResponders map[string]string
}

// DefaultPlan returns the fixed fixture plan: the directory layout and
// certificate matrix the downstream suite consumes by exact name.
func DefaultPlan() *Plan {
	return &Plan{
		OCSPResponders: map[string]string{
			AuthorityRoot: "ocsp-responder",
			AuthorityUser: "ocsp-responder-user",
		},
		Authorities: []AuthorityPlan{
			{
				ID:         AuthorityRoot,
				CommonName: "Example CA",
				Algorithm:  pki.RSA2048,
				SerialBase: 0x1000,
				CertDests:  []string{"certs/ca.pem"},
				KeyDests:   []string{"private/ca.key"},
				BundleDirs: []string{"cas/all", "cas/servers"},
				CRLDests:   []string{"crl/ca.crl", "ca.crl"},
			},
			{
				ID:         AuthorityUser,
				CommonName: "Example User CA",
				Parent:     AuthorityRoot,
				Algorithm:  pki.RSA2048,
				SerialBase: 0x2000,
				CertDests:  []string{"certs/ca_user.pem"},
				KeyDests:   []string{"private/ca_user.key"},
				BundleDirs: []string{"cas/all", "cas/users"},
				CRLDests:   []string{"crl/ca_user.crl", "ca_user.crl"},
			},
			{
				// Stranger CA: its leaves are never recorded, so their
				// serials are unknown to the OCSP index by construction.
				ID:         AuthorityUnknown,
				CommonName: "Unknown CA",
				Algorithm:  pki.RSA2048,
				SerialBase: 0x9000,
				CertDests:  []string{"unknown_certs/ca_unknown.pem"},
				KeyDests:   []string{"unknown_certs/ca_unknown.key"},
			},
		},
		Leaves: []LeafPlan{
			// RSA door certificates.
			{
				Name: "door1", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"door_certs/door1.pem"},
				KeyDests:  []string{"door_req/door1.key"},
			},
			{
				Name: "door2", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"door_certs/door2.pem"},
				KeyDests:  []string{"door_req/door2.key"},
			},
			// EC variants of the same doors, under ECC/.
			{
				Name: "door1-ecc", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.ECP256, Record: true,
				CertDests: []string{"ECC/door_certs/door1.pem"},
				KeyDests:  []string{"ECC/door_req/door1.key"},
			},
			{
				Name: "door2-ecc", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.ECP256, Record: true,
				CertDests: []string{"ECC/door_certs/door2.pem"},
				KeyDests:  []string{"ECC/door_req/door2.key"},
			},
			// Readers authenticate both ways; keyAgreement needs EC.
			{
				Name: "reader1", Authority: AuthorityRoot,
				Profile: pki.ProfileClientServerAuth, Algorithm: pki.ECP256, Record: true,
				CertDests: []string{"reader_certs/reader1.pem"},
				KeyDests:  []string{"reader_req/reader1.key"},
			},
			{
				Name: "reader2", Authority: AuthorityRoot,
				Profile: pki.ProfileClientServerAuth, Algorithm: pki.ECP256, Record: true,
				CertDests: []string{"reader_certs/reader2.pem"},
				KeyDests:  []string{"reader_req/reader2.key"},
			},
			{
				Name: "server1", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"server_certs/server1.pem"},
				KeyDests:  []string{"server_req/server1.key"},
			},
			{
				Name: "localhost", Authority: AuthorityRoot,
				Profile: pki.ProfileServerAuth, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"localhost/localhost.pem"},
				KeyDests:  []string{"localhost/localhost.key"},
			},
			// Identity-extraction fixtures: one certificate with every
			// SAN type, one with no extensions at all.
			{
				Name: "idcheck-full", Authority: AuthorityRoot,
				Profile: pki.ProfileSANFull, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"id_check/idcheck-full.pem"},
				KeyDests:  []string{"id_check/idcheck-full.key"},
			},
			{
				Name: "idcheck-minimal", Authority: AuthorityRoot,
				Profile: pki.ProfileMinimal, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"id_check/idcheck-minimal.pem"},
				KeyDests:  []string{"id_check/idcheck-minimal.key"},
			},
			// Negative test for OCSP URI discovery.
			{
				Name: "no-ocsp", Authority: AuthorityRoot,
				Profile: pki.ProfileNoOCSPURI, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"no-ocsp-uri/no-ocsp.pem"},
				KeyDests:  []string{"no-ocsp-uri/no-ocsp.key"},
			},
			// Delegated OCSP responder certificate.
			{
				Name: "ocsp-responder", Authority: AuthorityRoot,
				Profile: pki.ProfileOCSPResponder, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"ocsp/ocsp.pem"},
				KeyDests:  []string{"ocsp/ocsp.key"},
			},
			{
				Name: "ocsp-responder-user", Authority: AuthorityUser,
				Profile: pki.ProfileOCSPResponder, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"ocsp/ocsp_user.pem"},
				KeyDests:  []string{"ocsp/ocsp_user.key"},
			},
			// User certificates come from the subordinate user CA.
			{
				Name: "user1", Authority: AuthorityUser,
				Profile: pki.ProfileSigning, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"user_certs/user1.pem"},
				KeyDests:  []string{"user_req/user1.key"},
			},
			{
				Name: "user2", Authority: AuthorityUser,
				Profile: pki.ProfileSigning, Algorithm: pki.RSA2048, Record: true,
				CertDests: []string{"user_certs/user2.pem"},
				KeyDests:  []string{"user_req/user2.key"},
			},
			{
				Name: "revoked-user3", Authority: AuthorityUser,
				Profile: pki.ProfileSigning, Algorithm: pki.RSA2048,
				Record: true, Revoke: true,
				CertDests: []string{"revoked/revoked-user3.pem"},
				KeyDests:  []string{"revoked/revoked-user3.key"},
			},
			// Issued by the stranger CA and deliberately unrecorded.
			{
				Name: "unknown1", Authority: AuthorityUnknown,
				Profile: pki.ProfileServerAuth, Algorithm: pki.RSA2048,
				CertDests: []string{"unknown_certs/unknown1.pem"},
				KeyDests:  []string{"unknown_certs/unknown1.key"},
			},
		},
	}
}
