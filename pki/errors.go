package pki

import "errors"

// Every error in this package is fatal to a generation run: fixture
// generation has no transient failure modes, so callers abort rather
// than retry.

var (
	// ErrKeyGeneration is returned when the underlying crypto primitive
	// cannot produce a key pair.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrUnknownAlgorithm is returned for a key algorithm outside the
	// supported set (RSA-2048, EC-P256).
	ErrUnknownAlgorithm = errors.New("unknown key algorithm")

	// ErrUnknownProfile is returned when a profile name is not registered
	// in the catalog.
	ErrUnknownProfile = errors.New("unknown extension profile")

	// ErrProfileApplication is returned when a profile requests an
	// extension that is incompatible with the chosen key algorithm.
	ErrProfileApplication = errors.New("profile incompatible with key algorithm")

	// ErrDuplicateSerial is returned when a serial is recorded in the
	// revocation registry more than once.
	ErrDuplicateSerial = errors.New("serial already recorded")

	// ErrUnknownSerial is returned when revoking a serial that was never
	// recorded.
	ErrUnknownSerial = errors.New("serial not recorded")

	// ErrAlreadyRevoked is returned when revoking a serial twice.
	ErrAlreadyRevoked = errors.New("serial already revoked")

	// ErrSigning is returned when certificate or CRL signing fails,
	// typically an issuer key/algorithm mismatch.
	ErrSigning = errors.New("signing failed")
)
