package fixture

import (
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"strings"
)

type canonAttribute struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

// SubjectHash derives the OpenSSL subject_hash for a certificate:
// SHA-1 over the canonical encoding of the subject name, first four
// bytes taken little-endian, rendered as eight hex digits. The
// canonical encoding re-encodes every attribute value as a lowercased,
// whitespace-collapsed UTF8String and concatenates the DER SET of each
// RDN without the outer SEQUENCE header. TLS stacks that do path-based
// CA lookup resolve "<hash>.0" filenames in a CA directory with exactly
// this value.
func SubjectHash(cert *x509.Certificate) (string, error) {
	var rdns pkix.RDNSequence
	if _, err := asn1.Unmarshal(cert.RawSubject, &rdns); err != nil {
		return "", fmt.Errorf("parsing subject: %w", err)
	}

	var canon []byte
	for _, rdn := range rdns {
		attrs := make([]canonAttribute, 0, len(rdn))
		for _, atv := range rdn {
			value, ok := atv.Value.(string)
			if !ok {
				return "", fmt.Errorf("subject attribute %v is not a string", atv.Type)
			}
			attrs = append(attrs, canonAttribute{
				Type: atv.Type,
				Value: asn1.RawValue{
					Tag:   asn1.TagUTF8String,
					Bytes: []byte(canonString(value)),
				},
			})
		}
		der, err := asn1.MarshalWithParams(attrs, "set")
		if err != nil {
			return "", fmt.Errorf("encoding canonical subject: %w", err)
		}
		canon = append(canon, der...)
	}

	sum := sha1.Sum(canon)
	return fmt.Sprintf("%08x", binary.LittleEndian.Uint32(sum[:4])), nil
}

// canonString lowercases a value and collapses whitespace runs to a
// single space, per the canonical name form.
func canonString(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// bundleDestinations returns the destinations for a CA certificate in a
// bundle directory: a plain copy named after the authority and a
// hash-indexed alias.
func bundleDestinations(dir, authorityID string, cert *x509.Certificate) ([]string, error) {
	hash, err := SubjectHash(cert)
	if err != nil {
		return nil, err
	}
	return []string{
		dir + "/" + authorityID + ".pem",
		dir + "/" + hash + ".0",
	}, nil
}
