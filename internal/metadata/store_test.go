package metadata

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_LoadMissingCreatesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".metadata_cache.dat")
	store := NewStore(path, testLogger())

	records, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", records)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected store file to be created on first access: %v", err)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".metadata_cache.dat")
	store := NewStore(path, testLogger())

	records := []Record{
		{Path: "/games/mods/a.psarc", Checksum: "0cc175b9c0f1b6a831c399e269772661", LastModified: 100},
		{Path: "/games/mods/b.psarc", Checksum: "92eb5ffee6ae2fec3ad71c777531578f", LastModified: 200},
	}
	if err := store.Save(records); err != nil {
		t.Fatal(err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(loaded); err != nil {
		t.Fatal(err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("Save(Load()) changed store content:\nbefore: %s\nafter:  %s", before, after)
	}

	for i := range records {
		if loaded[i] != records[i] {
			t.Errorf("loaded[%d] = %+v, want %+v", i, loaded[i], records[i])
		}
	}
}

func TestStore_SaveWritesSpecialCharactersLiterally(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".metadata_cache.dat")
	store := NewStore(path, testLogger())

	existing := "[\n" +
		"  {\n" +
		"    \"path\": \"/Mods & Patches/<live>.psarc\",\n" +
		"    \"checksum\": \"0cc175b9c0f1b6a831c399e269772661\",\n" +
		"    \"last_modified\": 100\n" +
		"  }\n" +
		"]"
	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Path != "/Mods & Patches/<live>.psarc" {
		t.Fatalf("unexpected records %+v", loaded)
	}
	if err := store.Save(loaded); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("Save(Load()) changed store content:\nbefore: %s\nafter:  %s", existing, data)
	}
}

func TestStore_SaveTruncatesLongerContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".metadata_cache.dat")
	store := NewStore(path, testLogger())

	long := make([]Record, 0, 20)
	for i := 0; i < 20; i++ {
		long = append(long, Record{Path: filepath.Join("/mods", string(rune('a'+i))), Checksum: "ffff", LastModified: uint64(i)})
	}
	if err := store.Save(long); err != nil {
		t.Fatal(err)
	}
	if err := store.Save([]Record{{Path: "/x", Checksum: "1", LastModified: 1}}); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("store should hold valid JSON after a shorter save: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("expected 1 record, got %d", len(loaded))
	}
}

func TestStore_SaveNilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".metadata_cache.dat")
	store := NewStore(path, testLogger())

	if err := store.Save(nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [] on disk, got %q", data)
	}
}

func TestStore_LoadCorruptOrNull(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "not json at all"},
		{name: "wrong shape", content: `{"path":"/a"}`},
		{name: "null", content: "null"},
		{name: "truncated", content: `[{"path":"/a","checksum":"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".metadata_cache.dat")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			records, err := NewStore(path, testLogger()).Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if records == nil || len(records) != 0 {
				t.Errorf("expected empty slice, got %#v", records)
			}
		})
	}
}
