package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/mnemo/internal/engine"
	"github.com/felixgeelhaar/mnemo/internal/observe"
)

func TestCLI_Root(t *testing.T) {
	// remember, ask, recall, feedback, stats, patterns, prune,
	// knowledge, config.
	if len(RootCmd.Commands()) < 9 {
		t.Errorf("Expected at least 9 subcommands, got %d", len(RootCmd.Commands()))
	}
}

func TestCLI_Knowledge(t *testing.T) {
	found := false
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() == "knowledge" {
			found = true
			if len(cmd.Commands()) < 2 {
				t.Errorf("Expected add and search subcommands for knowledge, got %d", len(cmd.Commands()))
			}
		}
	}
	if !found {
		t.Error("knowledge command not found")
	}
}

func TestCLI_Config(t *testing.T) {
	found := false
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() == "config" {
			found = true
			if len(cmd.Commands()) < 2 {
				t.Errorf("Expected set and get subcommands for config, got %d", len(cmd.Commands()))
			}
		}
	}
	if !found {
		t.Error("config command not found")
	}
}

func TestEngineRoundTrip(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "cli-test-*")
	defer os.RemoveAll(tmpDir)

	cfg := engine.DefaultConfig()
	cfg.DBPath = filepath.Join(tmpDir, "memory.db")

	e, err := engine.New(cfg, observe.New(os.Stdout, true))
	if err != nil {
		t.Fatalf("Failed to init engine: %v", err)
	}
	defer e.Close()

	id, err := e.Record(context.Background(), engine.RecordRequest{
		Query:      "What does the stats command show?",
		Response:   "The stats command shows memory counts, success rate, and tokens saved.",
		Provider:   "openai",
		TokensUsed: 50,
		Success:    true,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty interaction id")
	}

	res, err := e.Process(context.Background(), engine.Request{Query: "what does the stats command show?"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !res.FromMemory {
		t.Error("expected exact match from memory")
	}
}
