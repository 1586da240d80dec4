package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// ManifestFile is the name of the artifact manifest written at the
// output root. `certforge verify` reads it back to detect drift between
// copies of the same logical artifact.
const ManifestFile = "manifest.db"

var manifestBucket = []byte("artifacts")

// ManifestEntry records one artifact's digest and every destination a
// copy was written to.
type ManifestEntry struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	SHA256       string   `json:"sha256"`
	Destinations []string `json:"destinations"`
}

// WriteManifest stores a digest entry per artifact in a BBolt database
// at path.
func WriteManifest(path string, artifacts []*Artifact) error {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("opening manifest db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(manifestBucket)
		if err != nil {
			return err
		}
		for _, artifact := range artifacts {
			sum := sha256.Sum256(artifact.Bytes)
			entry := ManifestEntry{
				Name:         artifact.Name,
				Kind:         string(artifact.Kind),
				SHA256:       hex.EncodeToString(sum[:]),
				Destinations: artifact.Destinations,
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(artifact.Name), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadManifest loads every entry from the manifest database at path.
func ReadManifest(path string) ([]ManifestEntry, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening manifest db: %w", err)
	}
	defer db.Close()

	var entries []ManifestEntry
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(manifestBucket)
		if b == nil {
			return fmt.Errorf("manifest db has no %s bucket", manifestBucket)
		}
		return b.ForEach(func(_, v []byte) error {
			var entry ManifestEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Verify recomputes the digest of every destination of every manifest
// entry under root and reports each mismatch or missing file. A non-nil
// error wrapping ErrManifestMismatch is returned when any problem is
// found; the returned slice describes them all.
func Verify(root string) ([]string, error) {
	entries, err := ReadManifest(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}

	var problems []string
	for _, entry := range entries {
		for _, dest := range entry.Destinations {
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(dest)))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %s: %v", entry.Name, dest, err))
				continue
			}
			sum := sha256.Sum256(data)
			if hex.EncodeToString(sum[:]) != entry.SHA256 {
				problems = append(problems, fmt.Sprintf("%s: %s: content differs from manifest", entry.Name, dest))
			}
		}
	}
	if len(problems) > 0 {
		return problems, fmt.Errorf("%w: %d problem(s)", ErrManifestMismatch, len(problems))
	}
	return nil, nil
}
