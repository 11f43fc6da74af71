package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sidekick/internal/checklist"
	"sidekick/internal/voice"
)

// Config models sidekick.yml.
type Config struct {
	DefaultTemplate string                    `yaml:"default_template" json:"default_template"`
	Templates       map[string]TemplateConfig `yaml:"templates" json:"templates"`
	Voice           VoiceConfig               `yaml:"voice" json:"voice"`
	Inspection      struct {
		IntervalDays int `yaml:"interval_days" json:"interval_days"`
	} `yaml:"inspection" json:"inspection"`
	Auth struct {
		TokenTTLMinutes int `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`
	} `yaml:"auth" json:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type TemplateConfig struct {
	Sections []SectionConfig `yaml:"sections" json:"sections"`
}

type SectionConfig struct {
	Name  string       `yaml:"name" json:"name"`
	Items []ItemConfig `yaml:"items" json:"items"`
}

type ItemConfig struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Status string `yaml:"status,omitempty" json:"status,omitempty"`
}

type VoiceConfig struct {
	Keywords struct {
		Repair    []string `yaml:"repair" json:"repair"`
		Attention []string `yaml:"attention" json:"attention"`
		OK        []string `yaml:"ok" json:"ok"`
	} `yaml:"keywords" json:"keywords"`
	Synonyms        []voice.Synonym `yaml:"synonyms" json:"synonyms"`
	Conjunctions    []string        `yaml:"conjunctions" json:"conjunctions"`
	MinClauseLength int             `yaml:"min_clause_length" json:"min_clause_length"`
	SourceTag       string          `yaml:"source_tag" json:"source_tag"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Templates) == 0 {
		return fmt.Errorf("config.templates is required")
	}
	if c.DefaultTemplate == "" {
		return fmt.Errorf("config.default_template is required")
	}
	if _, ok := c.Templates[c.DefaultTemplate]; !ok {
		return fmt.Errorf("default template %s not defined", c.DefaultTemplate)
	}
	for _, name := range c.templateNames() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.templates contains empty template name")
		}
		tpl, err := c.template(name)
		if err != nil {
			return err
		}
		if err := tpl.Validate(); err != nil {
			return err
		}
	}
	if _, err := c.Interpreter(); err != nil {
		return err
	}
	if c.Inspection.IntervalDays <= 0 {
		return fmt.Errorf("config.inspection.interval_days must be positive")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must be positive")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("webhook %d url must be http(s)", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (c *Config) templateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) template(name string) (checklist.Template, error) {
	tc := c.Templates[name]
	tpl := checklist.Template{Name: name}
	for _, sc := range tc.Sections {
		sd := checklist.SectionDef{Name: sc.Name}
		for _, ic := range sc.Items {
			def := checklist.ItemDef{ID: ic.ID, Label: ic.Label}
			if ic.Status != "" {
				status, err := checklist.ParseStatus(ic.Status)
				if err != nil {
					return tpl, fmt.Errorf("template %s item %s: %w", name, ic.ID, err)
				}
				def.Status = status
			}
			sd.Items = append(sd.Items, def)
		}
		tpl.Sections = append(tpl.Sections, sd)
	}
	return tpl, nil
}

// Catalog converts the configured templates into a checklist catalog.
// Templates that fail to convert are skipped; Validate reports them.
func (c *Config) Catalog() checklist.Catalog {
	var templates []checklist.Template
	for _, name := range c.templateNames() {
		tpl, err := c.template(name)
		if err != nil {
			continue
		}
		templates = append(templates, tpl)
	}
	return checklist.NewCatalog(c.DefaultTemplate, templates...)
}

// VoiceRules converts the voice section into interpreter rules. Fields left
// out of the config fall back to voice.DefaultRules; an explicit empty list
// (`synonyms: []`) is kept as written.
func (c *Config) VoiceRules() voice.Rules {
	rules := voice.DefaultRules()
	v := c.Voice
	for status, words := range map[checklist.Status][]string{
		checklist.StatusRepair:    v.Keywords.Repair,
		checklist.StatusAttention: v.Keywords.Attention,
		checklist.StatusOK:        v.Keywords.OK,
	} {
		if words != nil {
			rules.Keywords[status] = words
		}
	}
	if v.Synonyms != nil {
		rules.Synonyms = v.Synonyms
	}
	if v.Conjunctions != nil {
		rules.Conjunctions = v.Conjunctions
	}
	if v.MinClauseLength != 0 {
		rules.MinClauseLength = v.MinClauseLength
	}
	if v.SourceTag != "" {
		rules.SourceTag = v.SourceTag
	}
	return rules
}

// Interpreter builds the voice interpreter described by the config.
func (c *Config) Interpreter() (voice.Interpreter, error) {
	return voice.New(c.VoiceRules())
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sidekick.yml")
}

// Default returns the default Config. It panics if the built-in defaults do
// not round-trip.
func Default() *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(DefaultYAML())).Decode(&cfg); err != nil {
		panic(fmt.Errorf("decode default config: %w", err))
	}
	return &cfg
}

// DefaultYAML renders the built-in templates and voice rules as config YAML.
func DefaultYAML() string {
	var cfg Config
	cfg.DefaultTemplate = checklist.DefaultTemplateName
	cfg.Templates = map[string]TemplateConfig{}
	for _, tpl := range checklist.BuiltinTemplates() {
		tc := TemplateConfig{}
		for _, sd := range tpl.Sections {
			sc := SectionConfig{Name: sd.Name}
			for _, def := range sd.Items {
				sc.Items = append(sc.Items, ItemConfig{ID: def.ID, Label: def.Label, Status: string(def.Status)})
			}
			tc.Sections = append(tc.Sections, sc)
		}
		cfg.Templates[tpl.Name] = tc
	}
	rules := voice.DefaultRules()
	cfg.Voice.Keywords.Repair = rules.Keywords[checklist.StatusRepair]
	cfg.Voice.Keywords.Attention = rules.Keywords[checklist.StatusAttention]
	cfg.Voice.Keywords.OK = rules.Keywords[checklist.StatusOK]
	cfg.Voice.Synonyms = rules.Synonyms
	cfg.Voice.Conjunctions = rules.Conjunctions
	cfg.Voice.MinClauseLength = rules.MinClauseLength
	cfg.Voice.SourceTag = rules.SourceTag
	cfg.Inspection.IntervalDays = defaultIntervalDays
	cfg.Auth.TokenTTLMinutes = defaultTokenTTLMinutes
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		panic(fmt.Errorf("encode default config: %w", err))
	}
	return string(data)
}

const (
	defaultIntervalDays    = 30
	defaultTokenTTLMinutes = 12 * 60
)

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}
