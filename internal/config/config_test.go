package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Decisions.TypeLabel != "Deal Approval" {
		t.Fatalf("unexpected type label %q", cfg.Decisions.TypeLabel)
	}
	if got := len(cfg.Tags()); got != 23 {
		t.Fatalf("expected 23 tags, got %d", got)
	}
	if !cfg.KnownTag("Enterprise Deal ($250K+)") || cfg.KnownTag("Enterprise") {
		t.Fatalf("vocabulary lookup is wrong")
	}
	if cfg.RelationshipLabel("supersedes") != "Supersedes" {
		t.Fatalf("unexpected relationship label %q", cfg.RelationshipLabel("supersedes"))
	}
	if !strings.HasPrefix(cfg.ConfidenceLabel(5), "Very High") {
		t.Fatalf("unexpected confidence label %q", cfg.ConfidenceLabel(5))
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("decisions:\n  type_label: Hiring Decision\n  context_tags:\n    - name: Level\n      tags: [Junior, Senior]\nbus:\n  kind: redis\n  addr: localhost:6379\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Decisions.TypeLabel != "Hiring Decision" {
		t.Fatalf("type label not applied")
	}
	if tags := cfg.Tags(); len(tags) != 2 || tags[1] != "Senior" {
		t.Fatalf("tag groups should be replaced, got %v", tags)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("defaults should survive, got base path %q", cfg.Server.BasePath)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"redis without addr": "bus:\n  kind: redis\n",
		"unknown bus":        "bus:\n  kind: kafka\n",
		"duplicate tag":      "decisions:\n  context_tags:\n    - name: A\n      tags: [x]\n    - name: B\n      tags: [x]\n",
		"bad confidence":     "decisions:\n  confidence_labels:\n    9: nope\n",
		"bad relationship":   "decisions:\n  relationship_labels:\n    blocks: Blocks\n",
		"relative base path": "server:\n  base_path: v1\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("missing file should yield defaults, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("Load should fail without a config file")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load generated default: %v", err)
	}
}
