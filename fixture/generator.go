package fixture

import (
	"crypto/sha256"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmcleod/certforge/pki"
)

// deterministicEpoch pins the issuance clock in deterministic mode so
// validity windows, index timestamps and CRL windows reproduce exactly.
var deterministicEpoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// Generator evaluates a Plan into a published fixture tree. One
// Generator performs one run, and the run is all-or-nothing: the tree
// is built in a scratch directory next to the output root and published
// with a single rename, and the scratch is removed on any failure, so a
// later run never silently reuses partial output.
type Generator struct {
	cfg  *Config
	plan *Plan
	log  *logrus.Logger
}

// NewGenerator returns a Generator for the given config and plan. A nil
// config uses DefaultConfig, a nil plan uses DefaultPlan, a nil logger
// uses the logrus standard logger.
func NewGenerator(cfg *Config, plan *Plan, log *logrus.Logger) *Generator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if plan == nil {
		plan = DefaultPlan()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{cfg: cfg, plan: plan, log: log}
}

// Run executes the whole plan and publishes the tree at cfg.Out.
func (g *Generator) Run() error {
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	planner, err := g.build()
	if err != nil {
		return err
	}

	return g.publish(planner)
}

// build evaluates the plan into a fully populated Planner without
// touching the filesystem.
func (g *Generator) build() (*Planner, error) {
	keyProvider := pki.NewKeyProvider()
	clock := time.Now
	if g.cfg.Deterministic {
		keyProvider = pki.NewDeterministicKeyProvider(sha256.Sum256([]byte(g.cfg.Seed)))
		clock = func() time.Time { return deterministicEpoch }
		g.log.Info("deterministic mode: seeded keys, pinned clock")
	}
	catalog := pki.NewCatalogWithOCSPURL(g.cfg.OCSPURL)
	registry := pki.NewRegistry(pki.WithRevocationClock(clock))
	planner := NewPlanner()

	// Authorities first: leaves depend on their signer existing.
	authorities := make(map[string]*pki.Authority, len(g.plan.Authorities))
	for _, ap := range g.plan.Authorities {
		var parent *pki.Authority
		if ap.Parent != "" {
			var ok bool
			parent, ok = authorities[ap.Parent]
			if !ok {
				return nil, fmt.Errorf("authority %s: parent %q not derived yet", ap.ID, ap.Parent)
			}
		}
		authority, err := pki.NewAuthority(ap.ID, g.subject(ap.CommonName), ap.Algorithm, g.cfg.ValidityDays,
			parent,
			pki.WithKeyProvider(keyProvider),
			pki.WithCatalog(catalog),
			pki.WithClock(clock),
			pki.WithSerialBase(ap.SerialBase),
		)
		if err != nil {
			return nil, err
		}
		authorities[ap.ID] = authority
		g.log.WithFields(logrus.Fields{"authority": ap.ID, "subject": ap.CommonName}).Info("authority derived")

		if err := planner.Place(ap.ID+"-cert", KindCertificate, authority.CertificatePEM(), ap.CertDests...); err != nil {
			return nil, err
		}
		keyPEM, err := authority.KeyPEM()
		if err != nil {
			return nil, fmt.Errorf("authority %s: %w", ap.ID, err)
		}
		if err := planner.Place(ap.ID+"-key", KindPrivateKey, keyPEM, ap.KeyDests...); err != nil {
			return nil, err
		}
		for _, dir := range ap.BundleDirs {
			dests, err := bundleDestinations(dir, ap.ID, authority.Certificate())
			if err != nil {
				return nil, fmt.Errorf("authority %s: %w", ap.ID, err)
			}
			if err := planner.Place(ap.ID+"-cert", KindCABundle, authority.CertificatePEM(), dests...); err != nil {
				return nil, err
			}
		}
	}

	// Leaf matrix.
	leaves := make(map[string]*pki.Certificate, len(g.plan.Leaves))
	for _, lp := range g.plan.Leaves {
		authority, ok := authorities[lp.Authority]
		if !ok {
			return nil, fmt.Errorf("leaf %s: unknown authority %q", lp.Name, lp.Authority)
		}
		cert, err := authority.Issue(g.subject(lp.Name), lp.Algorithm, lp.Profile, g.cfg.ValidityDays)
		if err != nil {
			return nil, fmt.Errorf("leaf %s: %w", lp.Name, err)
		}
		leaves[lp.Name] = cert
		g.log.WithFields(logrus.Fields{
			"leaf":    lp.Name,
			"serial":  pki.SerialHex(cert.Serial),
			"profile": lp.Profile,
		}).Info("certificate issued")

		if lp.Record {
			if err := registry.Record(cert, pki.StatusValid); err != nil {
				return nil, fmt.Errorf("leaf %s: %w", lp.Name, err)
			}
		}

		if err := planner.Place(lp.Name+"-cert", KindCertificate, cert.PEM(), lp.CertDests...); err != nil {
			return nil, err
		}
		keyPEM, err := cert.KeyPEM()
		if err != nil {
			return nil, fmt.Errorf("leaf %s: %w", lp.Name, err)
		}
		if err := planner.Place(lp.Name+"-key", KindPrivateKey, keyPEM, lp.KeyDests...); err != nil {
			return nil, err
		}
	}

	// Revocations happen after the whole matrix is issued, so the index
	// keeps pure insertion order for the issuance phase.
	for _, lp := range g.plan.Leaves {
		if !lp.Revoke {
			continue
		}
		if err := registry.Revoke(leaves[lp.Name].Serial); err != nil {
			return nil, fmt.Errorf("leaf %s: %w", lp.Name, err)
		}
		g.log.WithField("leaf", lp.Name).Info("certificate revoked")
	}

	// Revocation-state projections: one ledger, two views.
	if err := planner.Place("ocsp-index", KindRevocation, registry.ExportOCSPIndex(), "ocsp/index.txt"); err != nil {
		return nil, err
	}
	for _, ap := range g.plan.Authorities {
		if len(ap.CRLDests) == 0 {
			continue
		}
		crlPEM, err := registry.ExportCRL(authorities[ap.ID])
		if err != nil {
			return nil, err
		}
		if err := planner.Place(ap.ID+"-crl", KindRevocation, crlPEM, ap.CRLDests...); err != nil {
			return nil, err
		}
	}

	// Pre-signed OCSP responses for every recorded serial, signed by
	// each authority's delegated responder.
	for authorityID, responderName := range g.plan.OCSPResponders {
		responder, ok := leaves[responderName]
		if !ok {
			return nil, fmt.Errorf("authority %s: OCSP responder leaf %q not in plan", authorityID, responderName)
		}
		responses, err := pki.SignOCSPResponses(registry, authorities[authorityID], responder)
		if err != nil {
			return nil, err
		}
		for _, resp := range responses {
			name := "ocsp-response-" + pki.SerialHex(resp.Serial)
			dest := "ocsp/responses/" + pki.SerialHex(resp.Serial) + ".der"
			if err := planner.Place(name, KindRevocation, resp.DER, dest); err != nil {
				return nil, err
			}
		}
	}

	return planner, nil
}

// publish writes the planned tree to a scratch directory beside the
// output root and swaps it in with a rename. Failures remove the
// scratch so nothing partial survives.
func (g *Generator) publish(planner *Planner) error {
	parent := filepath.Dir(g.cfg.Out)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}
	scratch := filepath.Join(parent, ".certforge-"+uuid.New().String())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}

	err := planner.WriteTo(scratch)
	if err == nil {
		err = WriteManifest(filepath.Join(scratch, ManifestFile), planner.Artifacts())
	}
	if err == nil {
		err = os.RemoveAll(g.cfg.Out)
	}
	if err == nil {
		err = os.Rename(scratch, g.cfg.Out)
	}
	if err != nil {
		os.RemoveAll(scratch)
		return err
	}

	g.log.WithFields(logrus.Fields{
		"out":       g.cfg.Out,
		"artifacts": len(planner.Artifacts()),
	}).Info("fixture tree published")
	return nil
}

// subject builds the fixed DN used by every plan entry; only the CN
// varies. Subjects are part of the byte-for-byte compatibility contract
// with consumers.
func (g *Generator) subject(commonName string) pkix.Name {
	return pkix.Name{
		Country:      []string{"US"},
		Province:     []string{"California"},
		Locality:     []string{"San Francisco"},
		Organization: []string{"Example Org"},
		CommonName:   commonName,
	}
}
