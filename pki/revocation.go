package pki

import (
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Certificate status values in the Registry.
const (
	StatusValid   = "valid"
	StatusRevoked = "revoked"
)

// indexTimeLayout is the UTCTime format used by the OpenSSL CA database
// that OCSP index consumers expect.
const indexTimeLayout = "060102150405Z"

// Entry is one line of the revocation ledger: a serial issued by some
// Authority, its status, and the subject DN denormalized for the text
// index. Exactly one entry exists per issued serial; status only ever
// moves valid -> revoked.
type Entry struct {
	Serial    *big.Int
	Issuer    string
	Status    string
	Subject   string
	NotAfter  time.Time
	RevokedAt time.Time // zero unless revoked
}

// Registry is the append-only ledger of issued serials. The OCSP index
// and the CRLs are both projections of this one ledger, so they cannot
// disagree about the status of a serial.
type Registry struct {
	clock    func() time.Time
	entries  []*Entry
	bySerial map[string]*Entry
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*Registry)

// WithRevocationClock substitutes the timestamp source for revocations
// and CRL validity windows.
func WithRevocationClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry returns an empty ledger.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clock:    time.Now,
		bySerial: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a ledger entry for an issued certificate. Serials are
// issued once and recorded once; a second Record for the same serial
// fails with ErrDuplicateSerial.
func (r *Registry) Record(cert *Certificate, status string) error {
	if status != StatusValid && status != StatusRevoked {
		return fmt.Errorf("recording serial %s: invalid status %q", SerialHex(cert.Serial), status)
	}
	key := SerialHex(cert.Serial)
	if _, exists := r.bySerial[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSerial, key)
	}
	entry := &Entry{
		Serial:   cert.Serial,
		Issuer:   cert.Issuer,
		Status:   status,
		Subject:  opensslSubject(cert.X509.Subject),
		NotAfter: cert.X509.NotAfter,
	}
	if status == StatusRevoked {
		entry.RevokedAt = r.clock().UTC()
	}
	r.entries = append(r.entries, entry)
	r.bySerial[key] = entry
	return nil
}

// Revoke transitions an existing entry to revoked, stamping the current
// time. Revoking an unknown serial fails with ErrUnknownSerial and
// revoking twice fails with ErrAlreadyRevoked.
func (r *Registry) Revoke(serial *big.Int) error {
	entry, ok := r.bySerial[SerialHex(serial)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSerial, SerialHex(serial))
	}
	if entry.Status == StatusRevoked {
		return fmt.Errorf("%w: %s", ErrAlreadyRevoked, SerialHex(serial))
	}
	entry.Status = StatusRevoked
	entry.RevokedAt = r.clock().UTC()
	return nil
}

// Entries returns the ledger in insertion order.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ExportOCSPIndex renders the ledger in the OpenSSL CA database text
// format, one line per entry in insertion order:
//
//	V|R<TAB>expiry<TAB>[revocation]<TAB>serial<TAB>unknown<TAB>subject
//
// The expiry field is derived from each certificate's actual notAfter.
func (r *Registry) ExportOCSPIndex() []byte {
	var buf bytes.Buffer
	for _, e := range r.entries {
		status := "V"
		revoked := ""
		if e.Status == StatusRevoked {
			status = "R"
			revoked = e.RevokedAt.UTC().Format(indexTimeLayout)
		}
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%s\t%s\n",
			status,
			e.NotAfter.UTC().Format(indexTimeLayout),
			revoked,
			SerialHex(e.Serial),
			"unknown",
			e.Subject,
		)
	}
	return buf.Bytes()
}

// ExportCRL builds and signs a CRL for one Authority containing exactly
// its revoked serials. An Authority with zero revocations still gets a
// structurally valid signed empty CRL; consumers require the file to
// exist either way. Returns PEM-encoded bytes.
func (r *Registry) ExportCRL(a *Authority) ([]byte, error) {
	var revoked []x509.RevocationListEntry
	for _, e := range r.entries {
		if e.Issuer != a.ID || e.Status != StatusRevoked {
			continue
		}
		revoked = append(revoked, x509.RevocationListEntry{
			SerialNumber:   e.Serial,
			RevocationTime: e.RevokedAt,
		})
	}

	now := r.clock().UTC()
	template := &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                now,
		NextUpdate:                now.Add(7 * 24 * time.Hour),
		RevokedCertificateEntries: revoked,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, a.cert, a.key.Signer)
	if err != nil {
		return nil, fmt.Errorf("CRL for %s: %w: %v", a.ID, ErrSigning, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der}), nil
}

// SerialHex renders a serial the way the index file does: uppercase
// hex, padded to an even number of digits.
func SerialHex(serial *big.Int) string {
	s := strings.ToUpper(serial.Text(16))
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return s
}

// opensslSubject formats a DN in the slash-separated OpenSSL style used
// by the index file, attributes in C, ST, L, O, OU, CN order.
func opensslSubject(name pkix.Name) string {
	var sb strings.Builder
	add := func(attr, value string) {
		if value != "" {
			sb.WriteString("/" + attr + "=" + value)
		}
	}
	for _, c := range name.Country {
		add("C", c)
	}
	for _, st := range name.Province {
		add("ST", st)
	}
	for _, l := range name.Locality {
		add("L", l)
	}
	for _, o := range name.Organization {
		add("O", o)
	}
	for _, ou := range name.OrganizationalUnit {
		add("OU", ou)
	}
	add("CN", name.CommonName)
	return sb.String()
}
