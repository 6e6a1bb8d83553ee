// Package config loads the lab roster and runtime settings from a YAML
// file plus environment credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/matsen/labpubs/internal/model"
)

// Defaults applied when the YAML omits a value.
const (
	DefaultDatabasePath = "~/.labpubs/labpubs.db"
	DefaultSchedule     = "0 6 * * *"
)

// ResearcherConfig is one roster entry as written by a human. Known
// catalog author IDs may be seeded here; they are loaded into the
// database append-only, and IDs resolved during syncs are never
// written back to this file.
type ResearcherConfig struct {
	Name              string   `yaml:"name"`
	ORCID             string   `yaml:"orcid,omitempty"`
	OpenAlexID        string   `yaml:"openalex_id,omitempty"`
	SemanticScholarID string   `yaml:"semantic_scholar_id,omitempty"`
	Affiliation       string   `yaml:"affiliation,omitempty"`
	StartDate         string   `yaml:"start_date,omitempty"`
	EndDate           string   `yaml:"end_date,omitempty"`
	Groups            []string `yaml:"groups,omitempty"`
}

// Notifications configures post-sync notification delivery.
type Notifications struct {
	Slack bool `yaml:"slack,omitempty"`
}

// Config is the labpubs configuration file.
type Config struct {
	Lab           string             `yaml:"lab,omitempty"`
	ContactEmail  string             `yaml:"contact_email,omitempty"`
	DatabasePath  string             `yaml:"database_path,omitempty"`
	Sources       []string           `yaml:"sources,omitempty"`
	Schedule      string             `yaml:"schedule,omitempty"`
	Researchers   []ResearcherConfig `yaml:"researchers"`
	Notifications Notifications      `yaml:"notifications,omitempty"`
}

// Credentials are secrets read from the environment, never from YAML.
type Credentials struct {
	S2APIKey        string `envconfig:"S2_API_KEY"`
	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
}

// LoadCredentials reads LABPUBS_-prefixed secrets from the environment.
func LoadCredentials() (Credentials, error) {
	var creds Credentials
	if err := envconfig.Process("labpubs", &creds); err != nil {
		return Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}
	return creds, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return ExpandPath("~/.labpubs/config.yaml")
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{string(model.SourceOpenAlex), string(model.SourceSemanticScholar)}
	}
}

// Validate checks roster entries and source names.
func (c *Config) Validate() error {
	if len(c.Researchers) == 0 {
		return fmt.Errorf("config has no researchers")
	}
	seen := make(map[string]bool)
	for i, r := range c.Researchers {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("researcher %d has no name", i+1)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate researcher %q", r.Name)
		}
		seen[r.Name] = true
		if r.ORCID != "" && !validORCID(r.ORCID) {
			return fmt.Errorf("researcher %q: malformed ORCID %q", r.Name, r.ORCID)
		}
	}
	for _, s := range c.Sources {
		switch model.Source(s) {
		case model.SourceOpenAlex, model.SourceSemanticScholar:
		default:
			return fmt.Errorf("unknown source %q", s)
		}
	}
	return nil
}

// Roster converts the configured researchers to domain records.
func (c *Config) Roster() []model.Researcher {
	roster := make([]model.Researcher, 0, len(c.Researchers))
	for _, r := range c.Researchers {
		m := model.Researcher{
			Name:        r.Name,
			ORCID:       r.ORCID,
			Affiliation: r.Affiliation,
			StartDate:   r.StartDate,
			EndDate:     r.EndDate,
			Groups:      r.Groups,
		}
		if r.OpenAlexID != "" || r.SemanticScholarID != "" {
			m.NativeIDs = make(map[model.Source][]string)
			if r.OpenAlexID != "" {
				m.NativeIDs[model.SourceOpenAlex] = []string{r.OpenAlexID}
			}
			if r.SemanticScholarID != "" {
				m.NativeIDs[model.SourceSemanticScholar] = []string{r.SemanticScholarID}
			}
		}
		roster = append(roster, m)
	}
	return roster
}

// DBPath returns the database path with ~ expanded.
func (c *Config) DBPath() string {
	return ExpandPath(c.DatabasePath)
}

// validORCID accepts the 0000-0000-0000-0000 shape, with X allowed as
// the final check digit.
func validORCID(orcid string) bool {
	orcid = strings.TrimPrefix(orcid, "https://orcid.org/")
	parts := strings.Split(orcid, "-")
	if len(parts) != 4 {
		return false
	}
	for i, p := range parts {
		if len(p) != 4 {
			return false
		}
		for j, r := range p {
			if r >= '0' && r <= '9' {
				continue
			}
			if r == 'X' && i == 3 && j == 3 {
				continue
			}
			return false
		}
	}
	return true
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
