package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entitysql.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.String(); got != "sqlgen dev (none)\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRun_GeneratesStatements(t *testing.T) {
	path := writeConfig(t, "observability:\n  metrics_enabled: false\n")
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--config", path,
		"--generate.dialects", "postgres",
		"--generate.entities", "Building",
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `INSERT INTO "Building" ("Name", "Description") VALUES (@Name, @Description) RETURNING "Id" AS "BuildingID";`
	if !strings.Contains(out.String(), want) {
		t.Fatalf("expected %q in output:\n%s", want, out.String())
	}
	if strings.Contains(out.String(), "mysql") {
		t.Fatalf("only postgres was requested:\n%s", out.String())
	}
}

func TestRun_InvalidConfiguration(t *testing.T) {
	path := writeConfig(t, "{}\n")
	err := run(context.Background(), []string{"--config", path, "--generate.dialects", "db2"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "generate.dialects") {
		t.Fatalf("expected validation error naming generate.dialects, got %v", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--no-such-flag"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected flag parse error")
	}
}
