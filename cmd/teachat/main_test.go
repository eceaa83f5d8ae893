package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// ARCHITECTURAL VALIDATION TEST: command tree
func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected a --config flag")
	}
}

// FUNCTIONAL VALIDATION TEST: migrate against a fresh SQLite file
func TestMigrateCommand(t *testing.T) {
	t.Setenv("TEACHAT_DATABASE_DSN", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("TEACHAT_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"migrate"})

	if err := root.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out.String(), "schema version 1") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestMigrateCommand_InvalidConfig(t *testing.T) {
	t.Setenv("TEACHAT_DATABASE_DRIVER", "mysql")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate"})

	if err := root.Execute(); err == nil {
		t.Error("migrate should fail on an invalid configuration")
	}
}
