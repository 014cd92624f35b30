// Package state persists the per-outline baseline: the last-sync
// snapshot both sides are diffed against. The file is versioned JSON,
// written atomically, and guarded by an advisory lock for the duration
// of an operation.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/tftio/org-gh/internal/types"
)

// Suffix is appended to the outline path to form the sibling baseline
// file name.
const Suffix = ".org-gh.json"

// Path resolves the baseline file location for an outline. With a
// central directory configured, the file name carries a digest of the
// outline's absolute path so distinct outlines never collide.
func Path(outlinePath, centralDir string) (string, error) {
	if centralDir == "" {
		return outlinePath + Suffix, nil
	}
	abs, err := filepath.Abs(outlinePath)
	if err != nil {
		return "", fmt.Errorf("resolving outline path: %w", err)
	}
	sum := sha256.Sum256([]byte(abs))
	name := filepath.Base(outlinePath) + "." + hex.EncodeToString(sum[:6]) + Suffix
	return filepath.Join(centralDir, name), nil
}

// doc is the serialized layout. Items are keyed by the decimal issue
// number.
type doc struct {
	Version        int                             `json:"version"`
	Repo           string                          `json:"repo"`
	LastSync       time.Time                       `json:"last_sync"`
	Items          map[string]types.BaselineRecord `json:"items"`
	PendingCreates []types.PendingCreate           `json:"pending_creates"`
}

var knownFields = map[string]bool{
	"version": true, "repo": true, "last_sync": true,
	"items": true, "pending_creates": true,
}

// Load reads the baseline file. A missing file yields (nil, nil): the
// caller decides whether an empty baseline is acceptable. Corruption
// and unsupported schema versions yield a *types.StateError.
func Load(path string) (*types.Baseline, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path derives from the outline argument
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StateError{Path: path, Msg: err.Error()}
	}

	var d doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, &types.StateError{Path: path, Msg: "unreadable baseline: " + err.Error(), Hint: "run init to start over"}
	}
	if d.Version > types.BaselineVersion {
		return nil, &types.StateError{
			Path: path,
			Msg:  fmt.Sprintf("baseline schema v%d is newer than supported v%d", d.Version, types.BaselineVersion),
			Hint: "upgrade org-gh",
		}
	}

	b := &types.Baseline{
		Version:        d.Version,
		Repo:           d.Repo,
		LastSync:       d.LastSync,
		Items:          make(map[int]types.BaselineRecord, len(d.Items)),
		PendingCreates: d.PendingCreates,
	}
	for k, rec := range d.Items {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			return nil, &types.StateError{Path: path, Msg: "invalid issue number key " + k, Hint: "run init to start over"}
		}
		b.Items[n] = rec
	}

	// Fields from a newer-but-compatible writer ride along untouched.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		for k, v := range raw {
			if !knownFields[k] {
				if b.Extra == nil {
					b.Extra = make(map[string]any)
				}
				b.Extra[k] = v
			}
		}
	}
	return b, nil
}

// Save writes the baseline atomically: sibling temp file, fsync,
// rename. Unknown fields captured at load time are re-emitted.
func Save(path string, b *types.Baseline) error {
	d := doc{
		Version:        b.Version,
		Repo:           b.Repo,
		LastSync:       b.LastSync,
		Items:          make(map[string]types.BaselineRecord, len(b.Items)),
		PendingCreates: b.PendingCreates,
	}
	if d.Version == 0 {
		d.Version = types.BaselineVersion
	}
	if d.PendingCreates == nil {
		d.PendingCreates = []types.PendingCreate{}
	}
	for n, rec := range b.Items {
		d.Items[strconv.Itoa(n)] = rec
	}

	known, err := json.Marshal(&d)
	if err != nil {
		return fmt.Errorf("marshaling baseline: %w", err)
	}
	payload := known
	if len(b.Extra) > 0 {
		var merged map[string]json.RawMessage
		if err := json.Unmarshal(known, &merged); err != nil {
			return fmt.Errorf("merging baseline fields: %w", err)
		}
		keys := make([]string, 0, len(b.Extra))
		for k := range b.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			raw, err := json.Marshal(b.Extra[k])
			if err != nil {
				return fmt.Errorf("marshaling baseline field %s: %w", k, err)
			}
			merged[k] = raw
		}
		if payload, err = json.Marshal(merged); err != nil {
			return fmt.Errorf("merging baseline fields: %w", err)
		}
	}

	var buf []byte
	if buf, err = indent(payload); err != nil {
		return err
	}
	return writeAtomic(path, buf)
}

func indent(payload []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("formatting baseline: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("formatting baseline: %w", err)
	}
	return append(out, '\n'), nil
}

// WriteFileAtomic writes through a sibling temp file with fsync and
// rename; the outline itself is written the same way as the baseline so
// a crash never leaves either file torn.
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, data)
}

// writeAtomic writes to a sibling temp file, fsyncs, and renames into
// place so a crash never leaves a torn baseline.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp baseline: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing baseline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing baseline: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting baseline mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing baseline: %w", err)
	}
	return nil
}

// Delete removes the baseline file; used when the outline itself is
// gone. A missing file is not an error.
func Delete(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
