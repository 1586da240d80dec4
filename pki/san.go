package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

// Extension OIDs and GeneralName context tags used when the standard
// library template cannot express what a profile needs (otherName SAN
// entries, critical extendedKeyUsage).
var (
	oidExtSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtExtendedUsage  = asn1.ObjectIdentifier{2, 5, 29, 37}
)

const (
	tagOtherName = 0
	tagRFC822    = 1
	tagDNS       = 2
	tagURI       = 6
)

var ekuOIDs = map[x509.ExtKeyUsage]asn1.ObjectIdentifier{
	x509.ExtKeyUsageServerAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 1},
	x509.ExtKeyUsageClientAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 2},
	x509.ExtKeyUsageCodeSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 3},
	x509.ExtKeyUsageEmailProtection: {1, 3, 6, 1, 5, 5, 7, 3, 4},
	x509.ExtKeyUsageOCSPSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 9},
}

// marshalSAN builds the complete subjectAltName extension by hand.
// Required whenever a profile carries an otherName entry: the standard
// library would emit its own SAN extension for the DNS/URI/email
// entries and a certificate cannot carry two.
//
// Entry order follows RFC 5280 GeneralName tag order as profiles list
// them: otherName, rfc822Name, dNSName, URI.
func marshalSAN(profile *Profile, commonName string) (pkix.Extension, error) {
	var names []asn1.RawValue

	for _, on := range profile.OtherNames {
		raw, err := marshalOtherName(on, commonName)
		if err != nil {
			return pkix.Extension{}, err
		}
		names = append(names, raw)
	}
	for _, email := range profile.EmailAddresses {
		names = append(names, asn1.RawValue{
			Class: asn1.ClassContextSpecific,
			Tag:   tagRFC822,
			Bytes: []byte(expandSAN(email, commonName)),
		})
	}
	for _, dns := range profile.DNSNames {
		names = append(names, asn1.RawValue{
			Class: asn1.ClassContextSpecific,
			Tag:   tagDNS,
			Bytes: []byte(expandSAN(dns, commonName)),
		})
	}
	for _, uri := range profile.URIs {
		names = append(names, asn1.RawValue{
			Class: asn1.ClassContextSpecific,
			Tag:   tagURI,
			Bytes: []byte(expandSAN(uri, commonName)),
		})
	}

	value, err := asn1.Marshal(names)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("encoding subjectAltName: %w", err)
	}
	return pkix.Extension{Id: oidExtSubjectAltName, Value: value}, nil
}

// marshalOtherName encodes an otherName GeneralName:
//
//	OtherName ::= SEQUENCE {
//	    type-id  OBJECT IDENTIFIER,
//	    value    [0] EXPLICIT ANY }
//
// with the value encoded as a UTF8String, matching how UPN otherNames
// appear in the wild.
func marshalOtherName(on OtherName, commonName string) (asn1.RawValue, error) {
	oidDER, err := asn1.Marshal(on.OID)
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("encoding otherName OID: %w", err)
	}
	utf8DER, err := asn1.MarshalWithParams(expandSAN(on.Value, commonName), "utf8")
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("encoding otherName value: %w", err)
	}
	wrapped, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      utf8DER,
	})
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("encoding otherName wrapper: %w", err)
	}
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        tagOtherName,
		IsCompound: true,
		Bytes:      append(oidDER, wrapped...),
	}, nil
}

// marshalCriticalEKU encodes an extendedKeyUsage extension with the
// critical bit set, which the template API cannot do.
func marshalCriticalEKU(usages []x509.ExtKeyUsage) (pkix.Extension, error) {
	oids := make([]asn1.ObjectIdentifier, 0, len(usages))
	for _, eku := range usages {
		oid, ok := ekuOIDs[eku]
		if !ok {
			return pkix.Extension{}, fmt.Errorf("no OID mapping for extended key usage %d", eku)
		}
		oids = append(oids, oid)
	}
	value, err := asn1.Marshal(oids)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("encoding extendedKeyUsage: %w", err)
	}
	return pkix.Extension{Id: oidExtExtendedUsage, Critical: true, Value: value}, nil
}
