package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotStore_WriteAndRead(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "yoinkers"))
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	rec := &Record{
		UserID:    "usr_a",
		UserName:  "Foo",
		IsYoinker: true,
		Year:      "2024",
		Reason:    "spam",
	}
	if err := store.Write("usr_a", rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read("usr_a")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !got.IsYoinker || got.UserName != "Foo" || got.Year != "2024" || got.Reason != "spam" {
		t.Errorf("Read() = %+v, want %+v", got, rec)
	}

	// File is stored under <dir>/<id>.json with the service's field names.
	data, err := os.ReadFile(filepath.Join(store.Dir(), "usr_a.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"isYoinker": true`, `"userName": "Foo"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("snapshot file missing %s:\n%s", field, data)
		}
	}
}

func TestSnapshotStore_ReadMissing(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	if _, err := store.Read("usr_missing"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Read() error = %v, want ErrNoSnapshot", err)
	}
}

func TestSnapshotStore_ReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSnapshotStore(dir)
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "usr_bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = store.Read("usr_bad")
	if err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Read() error = %v, want decode error", err)
	}
}
