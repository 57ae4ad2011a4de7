package migrations

import (
	"io/fs"
	"reflect"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `-- membership events
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (
    y String
) ENGINE = Memory;
`
	got := splitStatements(input)
	want := []string{
		"CREATE TABLE a (x UInt8) ENGINE = Memory",
		"CREATE TABLE b (\n    y String\n) ENGINE = Memory",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitStatements() = %q, want %q", got, want)
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain", "SELECT 'a'; SELECT 'b';", false},
		{"escaped quote", "SELECT 'it''s'; SELECT 1;", false},
		{"semicolon in literal", "SELECT 'a;b';", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNoSemicolonInStrings(tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateNoSemicolonInStrings() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/membership")
	if err != nil {
		t.Fatalf("databaseFromDSN: %v", err)
	}
	if db != "membership" {
		t.Errorf("db = %q, want membership", db)
	}

	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for DSN without database")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []struct {
		fsys fs.FS
		name string
	}{
		{PostgresFS, "postgres"},
		{ClickhouseFS, "clickhouse"},
	} {
		files, err := sqlFiles(dir.fsys, dir.name)
		if err != nil {
			t.Fatalf("sqlFiles(%s): %v", dir.name, err)
		}
		if len(files) == 0 {
			t.Errorf("no embedded %s migrations", dir.name)
		}
		for _, f := range files {
			data, err := fs.ReadFile(dir.fsys, dir.name+"/"+f)
			if err != nil {
				t.Fatalf("read %s: %v", f, err)
			}
			if err := validateNoSemicolonInStrings(string(data)); err != nil {
				t.Errorf("%s: %v", f, err)
			}
		}
	}
}

func TestPostgresSchemaHasSlotCounter(t *testing.T) {
	data, err := fs.ReadFile(PostgresFS, "postgres/001_ledger.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	schema := string(data)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS accounts",
		"CREATE TABLE IF NOT EXISTS ledger_slot",
		"INSERT INTO ledger_slot (id, slot) VALUES (TRUE, 0) ON CONFLICT (id) DO NOTHING",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
	if strings.Contains(schema, "SEQUENCE") {
		t.Error("slots come from ledger_slot, not a sequence")
	}
}
