package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chewing.sqlite3"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chewing.sqlite3")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path = %q, want %q", s.Path(), path)
	}
	if err := ValidateSchema(s.DB()); err != nil {
		t.Errorf("ValidateSchema: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestReopenKeepsPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chewing.sqlite3")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Upsert(UserPhrase{Phrase: "測試", Phones: []uint16{10268, 8708}, UserFreq: 3}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get([]uint16{10268, 8708}, "測試")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserFreq != 3 {
		t.Errorf("UserFreq = %d, want 3", got.UserFreq)
	}
}

func TestUpsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	phones := []uint16{100, 200}

	for _, p := range []UserPhrase{
		{Phrase: "甲乙", Phones: phones, UserFreq: 1, Time: 1},
		{Phrase: "丙丁", Phones: phones, UserFreq: 5, Time: 2},
		{Phrase: "戊己", Phones: []uint16{100, 300}, UserFreq: 9},
	} {
		if err := s.Upsert(p); err != nil {
			t.Fatalf("Upsert(%q) failed: %v", p.Phrase, err)
		}
	}

	got, err := s.Lookup(phones)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Lookup returned %d phrases, want 2", len(got))
	}
	if got[0].Phrase != "丙丁" || got[1].Phrase != "甲乙" {
		t.Errorf("Lookup order = [%s %s], want [丙丁 甲乙]", got[0].Phrase, got[1].Phrase)
	}

	// Replace keeps one row per (phones, phrase).
	if err := s.Upsert(UserPhrase{Phrase: "甲乙", Phones: phones, UserFreq: 10}); err != nil {
		t.Fatalf("Upsert replace failed: %v", err)
	}
	got, _ = s.Lookup(phones)
	if len(got) != 2 || got[0].Phrase != "甲乙" || got[0].UserFreq != 10 {
		t.Errorf("after replace Lookup = %+v", got)
	}

	freq, err := s.MaxUserFreq(phones)
	if err != nil {
		t.Fatalf("MaxUserFreq failed: %v", err)
	}
	if freq != 10 {
		t.Errorf("MaxUserFreq = %d, want 10", freq)
	}
}

func TestLookupMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Lookup([]uint16{1})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Lookup returned %d phrases, want 0", len(got))
	}

	if _, err := s.Get([]uint16{1}, "一"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}

	freq, err := s.MaxUserFreq([]uint16{1})
	if err != nil || freq != 0 {
		t.Errorf("MaxUserFreq = %d, %v; want 0, nil", freq, err)
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	tests := []struct {
		name string
		p    UserPhrase
	}{
		{"no phones", UserPhrase{Phrase: ""}},
		{"length mismatch", UserPhrase{Phrase: "一二三", Phones: []uint16{1, 2}}},
		{"zero phone", UserPhrase{Phrase: "一二", Phones: []uint16{1, 0}}},
		{"too long", UserPhrase{Phrase: "一二三四五六七八九十百千", Phones: make([]uint16, 12)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Upsert(tt.p); !errors.Is(err, ErrInvalidPhrase) {
				t.Errorf("Upsert error = %v, want ErrInvalidPhrase", err)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	s := openTestStore(t)
	phones := []uint16{7, 8, 9}
	if err := s.Upsert(UserPhrase{Phrase: "一二三", Phones: phones}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	removed, err := s.Remove(phones, "一二三")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v; want true, nil", removed, err)
	}
	removed, err = s.Remove(phones, "一二三")
	if err != nil || removed {
		t.Errorf("second Remove = %v, %v; want false, nil", removed, err)
	}
}

func TestAllAndStats(t *testing.T) {
	s := openTestStore(t)
	long := make([]uint16, MaxPhrasePhones)
	for i := range long {
		long[i] = uint16(i + 1)
	}
	phrases := []UserPhrase{
		{Phrase: "一二", Phones: []uint16{1, 2}, UserFreq: 4},
		{Phrase: "一二三四五六七八九十百", Phones: long, UserFreq: 2},
	}
	for _, p := range phrases {
		if err := s.Upsert(p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d phrases, want 2", len(all))
	}
	if len(all[1].Phones) != MaxPhrasePhones || all[1].Phones[10] != 11 {
		t.Errorf("long phrase phones = %v", all[1].Phones)
	}

	if err := s.AddLifetime(3); err != nil {
		t.Fatalf("AddLifetime failed: %v", err)
	}
	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Phrases != 2 || st.MaxUserFreq != 4 || st.Lifetime != 3 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestMigrationStatusAndValidate(t *testing.T) {
	s := openTestStore(t)

	status, err := GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != status.LatestVersion || len(status.Pending) != 0 {
		t.Errorf("status = %+v, want fully migrated", status)
	}

	// Simulate a database written before the config table existed.
	if _, err := s.DB().Exec("DROP TABLE config_v1; DELETE FROM schema_migrations WHERE version = 2"); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	if err := ValidateSchema(s.DB()); err == nil {
		t.Error("ValidateSchema should fail without config_v1")
	}
	status, err = GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != 1 || len(status.Pending) != 1 || status.Pending[0].Version != 2 {
		t.Errorf("status = %+v, want version 2 pending", status)
	}

	if err := MigrateDB(s.DB()); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}
	if err := ValidateSchema(s.DB()); err != nil {
		t.Errorf("ValidateSchema after re-migrate: %v", err)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.sqlite3")

	if _, err := Inspect(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Inspect(missing) = %v, want ErrNotExist", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()
	status, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if status.CurrentVersion != status.LatestVersion {
		t.Errorf("status = %+v, want current", status)
	}

	if s, err = Open(path); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := s.DB().Exec("DROP TABLE config_v1"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	s.Close()
	if _, err := Inspect(path); err == nil {
		t.Error("Inspect should fail when a migrated table is missing")
	}

	junk := filepath.Join(dir, "junk.sqlite3")
	if err := os.WriteFile(junk, []byte("not a database, just some text padding it out"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(junk); err == nil {
		t.Error("Inspect should fail on a file that is not a database")
	}
}
