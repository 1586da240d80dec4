package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Built-in profile names. Each is a distinct testable contract for the
// downstream suite; the name and the extension content are defined
// independently so unrelated certificate types never share an
// extension set by accident.
const (
	ProfileMinimal          = "minimal"
	ProfileSANFull          = "san-full"
	ProfileServerAuth       = "server-auth"
	ProfileClientServerAuth = "client-and-server-auth"
	ProfileSigning          = "signing"
	ProfileOCSPResponder    = "ocsp-responder"
	ProfileCA               = "ca"
	ProfileNoOCSPURI        = "no-ocsp-uri"
)

// CNPlaceholder in a SAN value is replaced with the subject CommonName
// at issuance time.
const CNPlaceholder = "{cn}"

// DefaultOCSPURL is the AIA OCSP pointer embedded by profiles that
// advertise a responder.
const DefaultOCSPURL = "http://ocsp.example.com:8888/"

// sanURIUUID is the fixed UUID used for the uuid: scheme URI SAN entry.
// Fixed so the extension content is byte-equivalent across runs.
var sanURIUUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// oidUPN is the Microsoft User Principal Name otherName type
// (1.3.6.1.4.1.311.20.2.3), the common otherName variant identity
// mappers have to parse.
var oidUPN = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2, 3}

// OtherName is a typed SAN entry carried as an otherName GeneralName.
// The value is encoded as an explicitly-tagged UTF8String.
type OtherName struct {
	OID   asn1.ObjectIdentifier
	Value string
}

// Profile is a named, immutable bundle of X.509v3 extensions applied at
// issuance. A profile with no SAN and no AIA is valid and represents
// the minimal-certificate test case.
type Profile struct {
	Name string

	// Basic constraints. IsCA implies the critical CA:true extension.
	IsCA bool

	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage

	// CriticalEKU forces the extendedKeyUsage extension to be marked
	// critical, which the OCSP responder profile requires.
	CriticalEKU bool

	// SAN entries. Values may contain CNPlaceholder.
	DNSNames       []string
	URIs           []string
	EmailAddresses []string
	OtherNames     []OtherName

	// OCSPURL, when non-empty, becomes an authorityInfoAccess OCSP
	// pointer.
	OCSPURL string
}

// HasExtensions reports whether applying the profile adds any X.509v3
// extension at all.
func (p *Profile) HasExtensions() bool {
	return p.IsCA || p.KeyUsage != 0 || len(p.ExtKeyUsage) > 0 ||
		len(p.DNSNames) > 0 || len(p.URIs) > 0 || len(p.EmailAddresses) > 0 ||
		len(p.OtherNames) > 0 || p.OCSPURL != ""
}

// requiresEC reports whether the profile only makes sense on an EC key.
// keyAgreement is the one usage in the catalog with that constraint.
func (p *Profile) requiresEC() bool {
	return p.KeyUsage&x509.KeyUsageKeyAgreement != 0
}

// expandSAN substitutes CNPlaceholder in a SAN value.
func expandSAN(value, commonName string) string {
	return strings.ReplaceAll(value, CNPlaceholder, commonName)
}

// Catalog maps profile names to extension profiles. The zero value is
// empty; NewCatalog returns one populated with the built-in profiles.
type Catalog struct {
	profiles map[string]*Profile
}

// NewCatalog returns a catalog holding the built-in profile set with
// the default OCSP responder URL.
func NewCatalog() *Catalog {
	return NewCatalogWithOCSPURL(DefaultOCSPURL)
}

// NewCatalogWithOCSPURL returns the built-in profile set with every AIA
// pointer rewritten to the given responder URL.
func NewCatalogWithOCSPURL(ocspURL string) *Catalog {
	c := &Catalog{profiles: make(map[string]*Profile)}
	for _, p := range builtinProfiles() {
		if p.OCSPURL != "" {
			p.OCSPURL = ocspURL
		}
		c.Register(p)
	}
	return c
}

// Register adds or replaces a profile under its name.
func (c *Catalog) Register(p *Profile) {
	if c.profiles == nil {
		c.profiles = make(map[string]*Profile)
	}
	c.profiles[p.Name] = p
}

// Resolve returns the profile registered under name. An unknown name is
// a planning bug and returns ErrUnknownProfile.
func (c *Catalog) Resolve(name string) (*Profile, error) {
	p, ok := c.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns all registered profile names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinProfiles() []*Profile {
	return []*Profile{
		{
			// No extensions at all. Exercises parsers that must not
			// assume extensions exist.
			Name: ProfileMinimal,
		},
		{
			// One SAN entry of every type the identity-extraction code
			// has to handle.
			Name:           ProfileSANFull,
			KeyUsage:       x509.KeyUsageDigitalSignature,
			DNSNames:       []string{CNPlaceholder},
			URIs:           []string{"uuid:" + sanURIUUID.String()},
			EmailAddresses: []string{CNPlaceholder + "@example.com"},
			OtherNames: []OtherName{
				{OID: oidUPN, Value: CNPlaceholder + "@example.com"},
			},
		},
		{
			Name:        ProfileServerAuth,
			KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			DNSNames:    []string{CNPlaceholder},
			OCSPURL:     DefaultOCSPURL,
		},
		{
			Name:     ProfileClientServerAuth,
			KeyUsage: x509.KeyUsageDigitalSignature | x509.KeyUsageKeyAgreement,
			ExtKeyUsage: []x509.ExtKeyUsage{
				x509.ExtKeyUsageServerAuth,
				x509.ExtKeyUsageClientAuth,
			},
			DNSNames: []string{CNPlaceholder},
			OCSPURL:  DefaultOCSPURL,
		},
		{
			// Document/message signer identity.
			Name:     ProfileSigning,
			KeyUsage: x509.KeyUsageDigitalSignature,
			ExtKeyUsage: []x509.ExtKeyUsage{
				x509.ExtKeyUsageEmailProtection,
				x509.ExtKeyUsageCodeSigning,
			},
			OCSPURL: DefaultOCSPURL,
		},
		{
			// An OCSP responder certificate must not point back at an
			// OCSP responder, so no AIA here.
			Name:        ProfileOCSPResponder,
			KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning},
			CriticalEKU: true,
		},
		{
			Name:     ProfileCA,
			IsCA:     true,
			KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		},
		{
			// server-auth without the AIA pointer: negative test for
			// OCSP-URI discovery.
			Name:        ProfileNoOCSPURI,
			KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			DNSNames:    []string{CNPlaceholder},
		},
	}
}
