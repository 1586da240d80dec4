package pki

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"
)

// defaultSerialBase is the first serial an Authority hands out to a
// leaf. Serials are strictly increasing and never reused, even after
// revocation.
const defaultSerialBase = 0x1000

// Certificate is one issued certificate together with the key pair
// generated for it. Immutable after issuance; revocation is tracked in
// the Registry and never touches the certificate bytes.
type Certificate struct {
	Serial  *big.Int
	Profile string
	Issuer  string // issuing Authority ID
	X509    *x509.Certificate
	DER     []byte
	Key     *KeyPair
}

// PEM returns the certificate in PEM encoding.
func (c *Certificate) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.DER})
}

// KeyPEM returns the private key in PEM encoding.
func (c *Certificate) KeyPEM() ([]byte, error) {
	return c.Key.PEM()
}

// Authority is one certificate authority, root or subordinate. It owns
// its key pair, its (self- or parent-signed) certificate, and the
// serial allocator for everything it issues.
//
// Issue calls against one Authority serialize on the allocator mutex;
// independent Authorities can issue concurrently.
type Authority struct {
	ID string

	subject pkix.Name
	key     *KeyPair
	cert    *x509.Certificate
	der     []byte

	mu         sync.Mutex
	nextSerial int64

	provider *KeyProvider
	catalog  *Catalog
	clock    func() time.Time
}

// AuthorityOption configures NewAuthority.
type AuthorityOption func(*Authority)

// WithKeyProvider substitutes the key source, e.g. a deterministic one.
func WithKeyProvider(p *KeyProvider) AuthorityOption {
	return func(a *Authority) { a.provider = p }
}

// WithCatalog substitutes the profile catalog.
func WithCatalog(c *Catalog) AuthorityOption {
	return func(a *Authority) { a.catalog = c }
}

// WithClock substitutes the issuance clock, used by the deterministic
// mode to pin validity windows.
func WithClock(clock func() time.Time) AuthorityOption {
	return func(a *Authority) { a.clock = clock }
}

// WithSerialBase overrides the first leaf serial.
func WithSerialBase(base int64) AuthorityOption {
	return func(a *Authority) { a.nextSerial = base }
}

// NewAuthority creates an Authority: generates its key pair, builds its
// certificate under the "ca" profile (self-signed when parent is nil,
// otherwise signed by parent), and initializes the serial allocator.
func NewAuthority(id string, subject pkix.Name, alg KeyAlgorithm, validityDays int, parent *Authority, opts ...AuthorityOption) (*Authority, error) {
	a := &Authority{
		ID:         id,
		subject:    subject,
		nextSerial: defaultSerialBase,
		provider:   NewKeyProvider(),
		catalog:    NewCatalog(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	key, err := a.provider.GenerateKey(alg)
	if err != nil {
		return nil, fmt.Errorf("authority %s: %w", id, err)
	}
	a.key = key

	profile, err := a.catalog.Resolve(ProfileCA)
	if err != nil {
		return nil, fmt.Errorf("authority %s: %w", id, err)
	}

	template, err := buildTemplate(subject, profile, validityDays, a.clock)
	if err != nil {
		return nil, fmt.Errorf("authority %s: %w", id, err)
	}

	signerCert := template
	signerKey := key.Signer
	if parent != nil {
		template.SerialNumber = big.NewInt(parent.allocateSerial())
		signerCert = parent.cert
		signerKey = parent.key.Signer
	} else {
		template.SerialNumber = big.NewInt(1)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, key.Signer.Public(), signerKey)
	if err != nil {
		return nil, fmt.Errorf("authority %s: %w: %v", id, ErrSigning, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("authority %s: parsing own certificate: %w", id, err)
	}
	a.cert = cert
	a.der = der
	return a, nil
}

// Certificate returns the Authority's own parsed certificate.
func (a *Authority) Certificate() *x509.Certificate { return a.cert }

// CertificatePEM returns the Authority's certificate in PEM encoding.
func (a *Authority) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.der})
}

// KeyPEM returns the Authority's private key in PEM encoding.
func (a *Authority) KeyPEM() ([]byte, error) { return a.key.PEM() }

// Subject returns the Authority's distinguished name.
func (a *Authority) Subject() pkix.Name { return a.subject }

func (a *Authority) allocateSerial() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	serial := a.nextSerial
	a.nextSerial++
	return serial
}

// Issue generates a fresh key pair, allocates the next serial, applies
// the named profile and signs the certificate. The issued certificate's
// issuer field matches this Authority's subject exactly, which
// downstream chain validation depends on.
func (a *Authority) Issue(subject pkix.Name, alg KeyAlgorithm, profileName string, validityDays int) (*Certificate, error) {
	profile, err := a.catalog.Resolve(profileName)
	if err != nil {
		return nil, fmt.Errorf("issuing %q: %w", subject.CommonName, err)
	}
	if profile.requiresEC() && alg != ECP256 {
		return nil, fmt.Errorf("issuing %q: %w: profile %q requires an EC key, got %s",
			subject.CommonName, ErrProfileApplication, profileName, alg)
	}

	key, err := a.provider.GenerateKey(alg)
	if err != nil {
		return nil, fmt.Errorf("issuing %q: %w", subject.CommonName, err)
	}

	template, err := buildTemplate(subject, profile, validityDays, a.clock)
	if err != nil {
		return nil, fmt.Errorf("issuing %q: %w", subject.CommonName, err)
	}
	template.SerialNumber = big.NewInt(a.allocateSerial())

	// The minimal profile must yield a certificate with zero extensions.
	// CreateCertificate copies the parent's subject key identifier into
	// an authorityKeyIdentifier extension, so sign against a parent copy
	// with the identifier stripped.
	parent := a.cert
	if !profile.HasExtensions() {
		stripped := *a.cert
		stripped.SubjectKeyId = nil
		parent = &stripped
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Signer.Public(), a.key.Signer)
	if err != nil {
		return nil, fmt.Errorf("issuing %q: %w: %v", subject.CommonName, ErrSigning, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("issuing %q: parsing issued certificate: %w", subject.CommonName, err)
	}

	return &Certificate{
		Serial:  template.SerialNumber,
		Profile: profileName,
		Issuer:  a.ID,
		X509:    cert,
		DER:     der,
		Key:     key,
	}, nil
}

// buildTemplate translates a profile into an x509 template for subject.
func buildTemplate(subject pkix.Name, profile *Profile, validityDays int, clock func() time.Time) (*x509.Certificate, error) {
	now := clock().UTC().Truncate(time.Second)
	template := &x509.Certificate{
		Subject:   subject,
		NotBefore: now,
		NotAfter:  now.AddDate(0, 0, validityDays),
		KeyUsage:  profile.KeyUsage,
	}

	if profile.IsCA {
		template.IsCA = true
		template.BasicConstraintsValid = true
	}

	if len(profile.OtherNames) > 0 {
		// The whole SAN extension has to be hand-built; see marshalSAN.
		ext, err := marshalSAN(profile, subject.CommonName)
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	} else {
		for _, dns := range profile.DNSNames {
			template.DNSNames = append(template.DNSNames, expandSAN(dns, subject.CommonName))
		}
		for _, email := range profile.EmailAddresses {
			template.EmailAddresses = append(template.EmailAddresses, expandSAN(email, subject.CommonName))
		}
		for _, raw := range profile.URIs {
			u, err := url.Parse(expandSAN(raw, subject.CommonName))
			if err != nil {
				return nil, fmt.Errorf("parsing SAN URI %q: %w", raw, err)
			}
			template.URIs = append(template.URIs, u)
		}
	}

	if profile.CriticalEKU {
		ext, err := marshalCriticalEKU(profile.ExtKeyUsage)
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ext)
	} else {
		template.ExtKeyUsage = profile.ExtKeyUsage
	}

	if profile.OCSPURL != "" {
		template.OCSPServer = []string{profile.OCSPURL}
	}

	return template, nil
}
