package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bowltrack/internal/code"
	"github.com/roach88/bowltrack/internal/replica"
)

// Remote drivers.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Roles in the roster.
const (
	RoleKitchen = "kitchen"
	RoleReturn  = "return"
	RoleAdmin   = "admin"
)

// Defaults.
const (
	DefaultTerminal  = "terminal-1"
	DefaultCachePath = "bowltrack.db"
	DefaultDocument  = "main"
)

// Config is a terminal's configuration.
type Config struct {
	Terminal  string `yaml:"terminal"`
	Timezone  string `yaml:"timezone"`
	CachePath string `yaml:"cache_path"`

	Remote Remote `yaml:"remote"`
	Sync   Sync   `yaml:"sync"`
	Code   Code   `yaml:"code"`
	Import Import `yaml:"import"`
	Report Report `yaml:"report"`

	Roster []Member `yaml:"roster"`
	Dishes []string `yaml:"dishes"`
}

// Remote selects the replication backend.
type Remote struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Document string `yaml:"document"`
}

// Sync tunes pushes. Zero values fall back to replica defaults.
type Sync struct {
	Debounce    Duration `yaml:"debounce"`
	PushTimeout Duration `yaml:"push_timeout"`
	PushRetries int      `yaml:"push_retries"`
}

// Code bounds the length of bare scanner tokens. Zero values fall back to
// the validator defaults.
type Code struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// Import configures manifest reconciliation.
type Import struct {
	AcceptedPrefixes []string `yaml:"accepted_prefixes"`
}

// Report configures exports.
type Report struct {
	OverdueRule string `yaml:"overdue_rule"`
}

// Member is one roster entry.
type Member struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Duration is a time.Duration written as "500ms", "2s" and so on.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes, validates and defaults a YAML document. An empty document
// yields Default().
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(data); err != nil {
		return Config{}, err
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return Config{}, fmt.Errorf("timezone: %w", err)
		}
	}
	if v := c.Validator(); v.MinLength > v.MaxLength {
		return Config{}, fmt.Errorf("code: min_length %d exceeds max_length %d", v.MinLength, v.MaxLength)
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Terminal == "" {
		c.Terminal = DefaultTerminal
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath
	}
	if c.Remote.Driver == "" {
		c.Remote.Driver = DriverNone
	}
	if c.Remote.Document == "" {
		c.Remote.Document = DefaultDocument
	}
	if c.Roster == nil {
		c.Roster = DefaultRoster()
	}
	if c.Dishes == nil {
		c.Dishes = DefaultDishes()
	}
}

// Location returns the configured zone, or time.Local.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		// Parse already rejected unknown zones.
		return time.Local
	}
	return loc
}

// ReplicaConfig converts the sync section.
func (c Config) ReplicaConfig() replica.Config {
	return replica.Config{
		Debounce:    time.Duration(c.Sync.Debounce),
		PushTimeout: time.Duration(c.Sync.PushTimeout),
		PushRetries: c.Sync.PushRetries,
	}
}

// Validator returns the scan code validator with the configured bounds.
func (c Config) Validator() code.Validator {
	v := code.Validator{MinLength: code.MinLength, MaxLength: code.MaxLength}
	if c.Code.MinLength > 0 {
		v.MinLength = c.Code.MinLength
	}
	if c.Code.MaxLength > 0 {
		v.MaxLength = c.Code.MaxLength
	}
	return v
}

// Operators returns roster names with role, in roster order. Admins are
// included for every role.
func (c Config) Operators(role string) []string {
	var out []string
	for _, m := range c.Roster {
		if m.Role == role || m.Role == RoleAdmin {
			out = append(out, m.Name)
		}
	}
	return out
}

// Member looks name up in the roster.
func (c Config) Member(name string) (Member, bool) {
	for _, m := range c.Roster {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// HasDish reports whether dish is one of the configured dish labels.
func (c Config) HasDish(dish string) bool {
	for _, d := range c.Dishes {
		if d == dish {
			return true
		}
	}
	return false
}

// DefaultRoster is the operator list shipped with the terminal.
func DefaultRoster() []Member {
	kitchen := []string{"Hamid", "Richa", "Jash", "Joes", "Mary", "Rushal", "Sreekanth"}
	returns := []string{"Sultan", "Riyaz", "Alan", "Adesh"}

	out := make([]Member, 0, len(kitchen)+len(returns))
	for _, n := range kitchen {
		out = append(out, Member{Name: n, Role: RoleKitchen})
	}
	for _, n := range returns {
		out = append(out, Member{Name: n, Role: RoleReturn})
	}
	return out
}

// DefaultDishes returns the dish labels A to Z followed by 1 to 4.
func DefaultDishes() []string {
	out := make([]string, 0, 30)
	for c := 'A'; c <= 'Z'; c++ {
		out = append(out, string(c))
	}
	for n := '1'; n <= '4'; n++ {
		out = append(out, string(n))
	}
	return out
}
