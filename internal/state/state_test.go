package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tftio/org-gh/internal/types"
)

func tempBaseline(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "notes.org"+Suffix)
}

func TestLoadMissingFileIsNil(t *testing.T) {
	b, err := Load(tempBaseline(t))
	if err != nil || b != nil {
		t.Fatalf("Load = %v, %v; want nil, nil", b, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := tempBaseline(t)
	b := types.NewBaseline("acme/widgets")
	b.LastSync = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b.Items[12] = types.BaselineRecord{
		Identity:     "write-docs",
		Title:        "Write docs",
		BodyDigest:   types.BodyDigest("body"),
		Keyword:      "TODO",
		Assignees:    []string{"alice"},
		Labels:       []string{"docs"},
		GHModifiedAt: b.LastSync,
		OrgModified:  b.LastSync,
	}
	b.SetPending("new-idea", "New idea")

	if err := Save(path, b); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Repo != "acme/widgets" || got.Version != types.BaselineVersion {
		t.Errorf("header = %+v", got)
	}
	rec, ok := got.Record(12)
	if !ok || rec.Identity != "write-docs" || rec.Keyword != "TODO" {
		t.Errorf("record = %+v, %v", rec, ok)
	}
	if !got.IsPending("new-idea") {
		t.Error("pending create lost")
	}
	if !got.LastSync.Equal(b.LastSync) {
		t.Errorf("last_sync = %v", got.LastSync)
	}
}

func TestItemsAreKeyedByDecimalNumber(t *testing.T) {
	path := tempBaseline(t)
	b := types.NewBaseline("acme/widgets")
	b.Items[7] = types.BaselineRecord{Identity: "x"}
	if err := Save(path, b); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	var items map[string]json.RawMessage
	if err := json.Unmarshal(doc["items"], &items); err != nil {
		t.Fatal(err)
	}
	if _, ok := items["7"]; !ok {
		t.Errorf("items keys = %v, want \"7\"", items)
	}
}

func TestUnknownFieldsSurviveRoundTrip(t *testing.T) {
	path := tempBaseline(t)
	src := `{"version":1,"repo":"a/b","last_sync":"2024-01-01T00:00:00Z","items":{},"pending_creates":[],"future_field":{"nested":true}}`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Save(path, b); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "future_field") {
		t.Errorf("unknown field dropped:\n%s", out)
	}
}

func TestCorruptBaselineIsStateError(t *testing.T) {
	path := tempBaseline(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var serr *types.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want StateError", err)
	}
	if !strings.Contains(serr.Hint, "init") {
		t.Errorf("hint = %q, want a reinitialize suggestion", serr.Hint)
	}
}

func TestNewerSchemaVersionRefuses(t *testing.T) {
	path := tempBaseline(t)
	if err := os.WriteFile(path, []byte(`{"version":99,"repo":"a/b"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var serr *types.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want StateError", err)
	}
}

func TestPathSibling(t *testing.T) {
	p, err := Path("/notes/work.org", "")
	if err != nil {
		t.Fatal(err)
	}
	if p != "/notes/work.org"+Suffix {
		t.Errorf("path = %q", p)
	}
}

func TestPathCentralDisambiguates(t *testing.T) {
	p1, err := Path("/a/work.org", "/central")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Path("/b/work.org", "/central")
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Errorf("central paths collide: %q", p1)
	}
	if filepath.Dir(p1) != "/central" {
		t.Errorf("dir = %q", filepath.Dir(p1))
	}
}

func TestLockExcludesSecondHolder(t *testing.T) {
	path := tempBaseline(t)
	l1, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Release()

	_, err = Acquire(path)
	var busy *types.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("second acquire = %v, want BusyError", err)
	}

	l1.Release()
	l3, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l3.Release()
}
