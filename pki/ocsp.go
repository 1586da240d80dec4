package pki

import (
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"
)

// SignedResponse is a pre-signed DER OCSP response for one serial.
// Downstream suites feed these to clients directly instead of running a
// live responder.
type SignedResponse struct {
	Serial *big.Int
	DER    []byte
}

// SignOCSPResponses produces one pre-signed OCSP response per ledger
// entry issued by the given Authority. Responses are signed by the
// delegated responder certificate, which must have been issued under
// the ocsp-responder profile by the same Authority.
func SignOCSPResponses(r *Registry, a *Authority, responder *Certificate) ([]SignedResponse, error) {
	now := r.clock().UTC()
	var out []SignedResponse
	for _, e := range r.entries {
		if e.Issuer != a.ID {
			continue
		}
		template := ocsp.Response{
			SerialNumber: e.Serial,
			ThisUpdate:   now,
			NextUpdate:   now.Add(7 * 24 * time.Hour),
			Certificate:  responder.X509,
		}
		switch e.Status {
		case StatusRevoked:
			template.Status = ocsp.Revoked
			template.RevokedAt = e.RevokedAt
			template.RevocationReason = ocsp.Unspecified
		default:
			template.Status = ocsp.Good
		}
		der, err := ocsp.CreateResponse(a.cert, responder.X509, template, responder.Key.Signer)
		if err != nil {
			return nil, fmt.Errorf("OCSP response for serial %s: %w: %v", SerialHex(e.Serial), ErrSigning, err)
		}
		out = append(out, SignedResponse{Serial: e.Serial, DER: der})
	}
	return out, nil
}
