// Package config loads credentials from the environment and the
// board-to-tracker mapping tables from YAML.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvTrelloAPIKey   = "TRELLO_API_KEY"
	EnvTrelloToken    = "TRELLO_TOKEN"
	EnvTrelloBoard    = "TRELLO_BOARD"
	EnvTrelloUser     = "TRELLO_USER"
	EnvTrelloURL      = "TRELLO_URL"
	EnvRedmineURL     = "REDMINE_URL"
	EnvRedmineAPIKey  = "REDMINE_API_KEY"
	EnvRedmineProject = "REDMINE_PROJECT"
	EnvTimezone       = "TASKBLASTER_TIMEZONE"
	EnvMappings       = "TASKBLASTER_MAPPINGS"
)

// Defaults for settings that are not secrets.
const (
	DefaultRedmineProject = "chameleon"
	DefaultTimezone       = "America/Chicago"
)

// Mappings holds the static lookup tables between the board and the tracker.
type Mappings struct {
	// Categories maps board category values to tracker category names.
	Categories map[string]string `yaml:"categories"`
	// Users maps board full names or usernames to tracker user names, for
	// people whose names differ between the two systems.
	Users map[string]string `yaml:"users"`

	// Cards on this list or board are never scheduled into a version.
	FutureList  string `yaml:"future_list"`
	FutureBoard string `yaml:"future_board"`

	CategoryField string `yaml:"category_field"`
	TicketField   string `yaml:"ticket_field"`
	HighPriority  string `yaml:"high_priority"`
}

// DefaultMappings returns the built-in tables.
func DefaultMappings() Mappings {
	return Mappings{
		Categories: map[string]string{
			"Appliances":       "Appliances (technical debt)",
			"Operations":       "Systems operations (technical debt)",
			"Outreach":         "Outreach",
			"Testbed services": "Systems (development)",
			"User services":    "Portal and User Services (technical debt)",
		},
		Users: map[string]string{
			"zhenz-uchicago": "Zhuo Zhen",
		},
		FutureList:    "Future Sync",
		FutureBoard:   "Product Roadmap",
		CategoryField: "Category",
		TicketField:   "Redmine Ticket",
		HighPriority:  "High",
	}
}

// LoadMappings reads a mappings YAML file. Keys left out of the file keep
// their default values; a map given in the file replaces the default map.
func LoadMappings(path string) (Mappings, error) {
	m := DefaultMappings()
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("could not read mappings file '%s': %w", path, err)
	}

	var file Mappings
	if err := yaml.Unmarshal(data, &file); err != nil {
		safeData, _ := json.Marshal(string(data))
		return m, fmt.Errorf("could not parse YAML from '%s': %w. Content: %s", path, err, safeData)
	}

	if file.Categories != nil {
		m.Categories = file.Categories
	}
	if file.Users != nil {
		m.Users = file.Users
	}
	overlay(&m.FutureList, file.FutureList)
	overlay(&m.FutureBoard, file.FutureBoard)
	overlay(&m.CategoryField, file.CategoryField)
	overlay(&m.TicketField, file.TicketField)
	overlay(&m.HighPriority, file.HighPriority)
	return m, nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Config is the full runtime configuration.
type Config struct {
	TrelloAPIKey string
	TrelloToken  string
	TrelloBoard  string
	TrelloUser   string
	TrelloURL    string

	RedmineURL     string
	RedmineAPIKey  string
	RedmineProject string

	Timezone string
	Mappings Mappings
}

// Load reads a .env file if present, then the environment. mappingsPath may
// be empty, in which case $TASKBLASTER_MAPPINGS or the built-in tables are
// used.
func Load(mappingsPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TrelloAPIKey:   os.Getenv(EnvTrelloAPIKey),
		TrelloToken:    os.Getenv(EnvTrelloToken),
		TrelloBoard:    os.Getenv(EnvTrelloBoard),
		TrelloUser:     os.Getenv(EnvTrelloUser),
		TrelloURL:      os.Getenv(EnvTrelloURL),
		RedmineURL:     os.Getenv(EnvRedmineURL),
		RedmineAPIKey:  os.Getenv(EnvRedmineAPIKey),
		RedmineProject: getEnvWithDefault(EnvRedmineProject, DefaultRedmineProject),
		Timezone:       getEnvWithDefault(EnvTimezone, DefaultTimezone),
		Mappings:       DefaultMappings(),
	}

	if mappingsPath == "" {
		mappingsPath = os.Getenv(EnvMappings)
	}
	if mappingsPath != "" {
		m, err := LoadMappings(mappingsPath)
		if err != nil {
			return nil, err
		}
		cfg.Mappings = m
	}
	return cfg, nil
}

// Location returns the time zone that defines "today".
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateTrello checks that the board credentials are set.
func (c *Config) ValidateTrello() error {
	return requireAll(
		setting{"trello api key", c.TrelloAPIKey},
		setting{"trello token", c.TrelloToken},
		setting{"trello board", c.TrelloBoard},
	)
}

// ValidateRedmine checks that the tracker credentials are set.
func (c *Config) ValidateRedmine() error {
	return requireAll(
		setting{"redmine url", c.RedmineURL},
		setting{"redmine api key", c.RedmineAPIKey},
		setting{"redmine project", c.RedmineProject},
	)
}

type setting struct {
	name  string
	value string
}

func requireAll(settings ...setting) error {
	for _, s := range settings {
		if s.value == "" {
			return fmt.Errorf("missing %s: set it by flag or environment variable", s.name)
		}
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
