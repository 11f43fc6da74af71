package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sidekick/internal/checklist"
	"sidekick/internal/voice"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.DefaultTemplate != "crane" {
		t.Fatalf("expected crane default, got %s", cfg.DefaultTemplate)
	}
	names := cfg.Catalog().Names()
	if len(names) != len(checklist.BuiltinTemplates()) {
		t.Fatalf("expected all builtin templates, got %v", names)
	}
	if cfg.Inspection.IntervalDays != 30 {
		t.Fatalf("unexpected interval %d", cfg.Inspection.IntervalDays)
	}
}

func TestDefaultYAMLRoundTripsThroughFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(DefaultYAML()))
	if err != nil {
		t.Fatalf("parse default yaml: %v", err)
	}
	in, err := cfg.Interpreter()
	if err != nil {
		t.Fatalf("interpreter: %v", err)
	}
	if got, _ := in.InferStatus("needs repair"); got != checklist.StatusRepair {
		t.Fatalf("expected REPAIR keyword from config, got %q", got)
	}
}

func TestVoiceSectionFallsBackToDefaults(t *testing.T) {
	data := `
default_template: crane
templates:
  crane:
    sections:
      - name: Structure
        items:
          - id: s1
            label: Support Columns
          - id: s2
            label: Bolts
inspection:
  interval_days: 30
auth:
  token_ttl_minutes: 60
`
	cfg, err := FromYAML([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rules := cfg.VoiceRules()
	if rules.MinClauseLength != voice.DefaultMinClauseLength || len(rules.Conjunctions) == 0 {
		t.Fatalf("expected default voice rules, got %+v", rules)
	}
	in, err := cfg.Interpreter()
	if err != nil {
		t.Fatalf("interpreter: %v", err)
	}
	doc := checklist.Generate(cfg.Catalog(), checklist.Profile{})
	res := in.Interpret(doc, "support columns are broken and bolts ok")
	if len(res.Clauses) != 2 {
		t.Fatalf("expected two clauses, got %q", res.Clauses)
	}
	if got := res.Document.Sections[0].Items[0].Status; got != checklist.StatusRepair {
		t.Fatalf("expected s1 REPAIR, got %s", got)
	}
	if got := res.Document.Sections[0].Items[1].Status; got != checklist.StatusOK {
		t.Fatalf("expected s2 OK, got %s", got)
	}
}

func TestVoiceSectionPartialOverride(t *testing.T) {
	cfg := Default()
	cfg.Voice = VoiceConfig{}
	cfg.Voice.Keywords.Repair = []string{"cracked"}
	rules := cfg.VoiceRules()
	if got := rules.Keywords[checklist.StatusRepair]; len(got) != 1 || got[0] != "cracked" {
		t.Fatalf("expected configured repair keywords, got %v", got)
	}
	if len(rules.Keywords[checklist.StatusAttention]) == 0 || len(rules.Keywords[checklist.StatusOK]) == 0 {
		t.Fatalf("expected default attention and ok keywords, got %v", rules.Keywords)
	}
	if rules.SourceTag != voice.DefaultSourceTag {
		t.Fatalf("expected default source tag, got %q", rules.SourceTag)
	}
}

func TestFromYAMLCustomTemplate(t *testing.T) {
	data := `
default_template: gantry
templates:
  gantry:
    sections:
      - name: Legs
        items:
          - id: l1
            label: Leg Welds
          - id: l2
            label: Casters
            status: attention
voice:
  keywords:
    repair: [cracked]
    attention: [worn]
    ok: [fine]
  synonyms:
    - triggers: [wheel, caster]
      fragment: caster
  conjunctions: [and]
  min_clause_length: 2
  source_tag: Mic
inspection:
  interval_days: 7
auth:
  token_ttl_minutes: 60
webhooks:
  - url: https://hooks.example.com/sidekick
    events: [inspection.completed]
`
	cfg, err := FromYAML([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	doc := checklist.Generate(cfg.Catalog(), checklist.Profile{HoistType: "anything"})
	if doc.Template != "gantry" || len(doc.Sections) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Sections[0].Items[1].Status != checklist.StatusAttention {
		t.Fatalf("expected template status override, got %s", doc.Sections[0].Items[1].Status)
	}
	in, err := cfg.Interpreter()
	if err != nil {
		t.Fatalf("interpreter: %v", err)
	}
	res := in.Interpret(doc, "wheel is cracked")
	if !res.Matched || res.Document.Sections[0].Items[1].Status != checklist.StatusRepair {
		t.Fatalf("expected caster repair via synonym, got %+v", res)
	}
	if !strings.HasPrefix(res.Document.Sections[0].Items[1].Notes, "[Mic ") {
		t.Fatalf("expected configured source tag, got %q", res.Document.Sections[0].Items[1].Notes)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing default": func(c *Config) { c.DefaultTemplate = "nope" },
		"bad status": func(c *Config) {
			tpl := c.Templates["crane"]
			tpl.Sections[0].Items[0].Status = "FIXED"
			c.Templates["crane"] = tpl
		},
		"duplicate item": func(c *Config) {
			tpl := c.Templates["crane"]
			tpl.Sections[0].Items[1].ID = tpl.Sections[0].Items[0].ID
			c.Templates["crane"] = tpl
		},
		"empty keyword":  func(c *Config) { c.Voice.Keywords.OK = []string{""} },
		"interval":       func(c *Config) { c.Inspection.IntervalDays = 0 },
		"token ttl":      func(c *Config) { c.Auth.TokenTTLMinutes = -1 },
		"webhook scheme": func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "ftp://x"}} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config without file, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sidekick.yml"), []byte(DefaultYAML()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("expected config, got %v %v", cfg, err)
	}
}
