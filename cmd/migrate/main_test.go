package main

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "resolutions" {
		t.Fatalf("expected first migration 1 resolutions, got %d %s", migrations[0].Version, migrations[0].Name)
	}
	if migrations[1].Version != 2 || migrations[1].Name != "assessments" {
		t.Fatalf("expected second migration 2 assessments, got %d %s", migrations[1].Version, migrations[1].Name)
	}
	if !strings.Contains(migrations[1].UpSQL, "PRIMARY KEY (fixture_id, selection, cooldown_bucket)") {
		t.Fatal("expected assessments to be keyed by cooldown bucket")
	}
}

func TestLoadMigrationsRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {
			"migrations/0001_a.up.sql": {Data: []byte("SELECT 1")},
		},
		"bad name": {
			"migrations/first.up.sql": {Data: []byte("SELECT 1")},
		},
		"empty body": {
			"migrations/0001_a.up.sql":   {Data: []byte("  ")},
			"migrations/0001_a.down.sql": {Data: []byte("SELECT 1")},
		},
		"conflicting names": {
			"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
			"migrations/0001_b.down.sql": {Data: []byte("SELECT 1")},
		},
		"no files": {},
	}
	for name, fsys := range cases {
		if _, err := loadMigrations(fsys); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseSteps(t *testing.T) {
	if n, err := parseSteps(nil); err != nil || n != 1 {
		t.Fatalf("expected default of 1, got %d %v", n, err)
	}
	if n, err := parseSteps([]string{"3"}); err != nil || n != 3 {
		t.Fatalf("expected 3, got %d %v", n, err)
	}
	for _, bad := range []string{"0", "-1", "two"} {
		if _, err := parseSteps([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
