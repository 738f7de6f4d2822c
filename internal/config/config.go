package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "precedent.yml"

// Config models precedent.yml.
type Config struct {
	Decisions struct {
		TypeLabel        string            `yaml:"type_label"`
		ContextTags      []TagGroup        `yaml:"context_tags"`
		ConfidenceLabels map[int]string    `yaml:"confidence_labels"`
		RelationLabels   map[string]string `yaml:"relationship_labels"`
	} `yaml:"decisions"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		DevLogin  bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Bus struct {
		Kind    string `yaml:"kind"`
		Addr    string `yaml:"addr"`
		Channel string `yaml:"channel"`
	} `yaml:"bus"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type TagGroup struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Tags flattens the tag groups in declaration order.
func (c *Config) Tags() []string {
	var out []string
	for _, g := range c.Decisions.ContextTags {
		out = append(out, g.Tags...)
	}
	return out
}

// KnownTag reports whether tag is in the vocabulary. An empty vocabulary accepts anything.
func (c *Config) KnownTag(tag string) bool {
	if len(c.Decisions.ContextTags) == 0 {
		return true
	}
	for _, g := range c.Decisions.ContextTags {
		for _, t := range g.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}

// RelationshipLabel returns the caption for a relationship type, or the type itself.
func (c *Config) RelationshipLabel(relType string) string {
	if l, ok := c.Decisions.RelationLabels[relType]; ok && l != "" {
		return l
	}
	return relType
}

func (c *Config) ConfidenceLabel(level int) string {
	if l, ok := c.Decisions.ConfidenceLabels[level]; ok {
		return l
	}
	return fmt.Sprintf("%d", level)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Decisions.TypeLabel) == "" {
		return fmt.Errorf("config.decisions.type_label is required")
	}
	seen := map[string]string{}
	for _, g := range c.Decisions.ContextTags {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("config.decisions.context_tags has a group without a name")
		}
		for _, t := range g.Tags {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("tag group %s has an empty tag", g.Name)
			}
			if prev, ok := seen[t]; ok {
				return fmt.Errorf("tag %q appears in groups %s and %s", t, prev, g.Name)
			}
			seen[t] = g.Name
		}
	}
	for level := range c.Decisions.ConfidenceLabels {
		if level < 1 || level > 5 {
			return fmt.Errorf("confidence label for level %d is out of range 1..5", level)
		}
	}
	for relType := range c.Decisions.RelationLabels {
		switch relType {
		case "similar", "supersedes", "related":
		default:
			return fmt.Errorf("relationship label for unknown type %s", relType)
		}
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Bus.Kind {
	case "", "local":
	case "redis":
		if c.Bus.Addr == "" {
			return fmt.Errorf("config.bus.addr is required for the redis bus")
		}
	default:
		return fmt.Errorf("config.bus.kind must be local or redis, got %s", c.Bus.Kind)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("config.cache.size must not be negative")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with precedent init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses config on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `decisions:
  type_label: Deal Approval
  context_tags:
    - name: Deal Size
      tags: ["Small Deal (<$10K)", "Medium Deal ($10K-$50K)", "Large Deal ($50K-$250K)", "Enterprise Deal ($250K+)"]
    - name: Customer Segment
      tags: ["New Customer", "Existing Customer", "Strategic Account", "Partner Referral"]
    - name: Discount Tier
      tags: ["Standard Pricing", "Small Discount (5-10%)", "Medium Discount (10-20%)", "Large Discount (20%+)", "Custom Terms"]
    - name: Contract Type
      tags: ["Monthly", "Annual", "Multi-Year", "Trial/POC", "Enterprise Agreement"]
    - name: Deal Stage
      tags: ["Early Stage", "Mid-Funnel", "Late Stage", "Closed Won", "Closed Lost"]
  confidence_labels:
    1: Very Low (<20% probability)
    2: Low (20-40% probability)
    3: Medium (40-60% probability)
    4: High (60-80% probability)
    5: Very High (80%+ probability)
  relationship_labels:
    similar: Similar decision
    supersedes: Supersedes
    related: Related decision

server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  jwt_secret: ""
  dev_login: false

bus:
  kind: local
  channel: precedent.changes

cache:
  size: 512

log:
  mode: dev
`
