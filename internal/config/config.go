package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"go.uber.org/zap"

	"github.com/Afrawles/redmine-alarm/internal/logging"
)

const (
	SectionMail    = "mail"
	SectionRedmine = "redmine"
	SectionMetrics = "metrics"
)

type Config struct {
	Mail    MailConfig
	Redmine RedmineConfig
	Metrics MetricsConfig

	// Raw holds every section/key read from the config file, including the
	// ones the program does not know about.
	Raw map[string]map[string]string

	Verbose bool
	Debug   bool
}

type MailConfig struct {
	To       string
	From     string
	Host     string
	User     string
	Password string
	Port     int
	Subject  string
	StartTLS bool
}

type RedmineConfig struct {
	URL    string
	APIKey string
	// Host is derived from URL.
	Host string
	// RateLimit is the number of tracker requests per second, 0 disables pacing.
	RateLimit float64
}

type MetricsConfig struct {
	Pushgateway string
	Job         string
}

// DefaultPath returns /etc/<prog>.conf.
func DefaultPath(prog string) string {
	return "/etc/" + prog + ".conf"
}

// Default returns the built-in configuration. The values are placeholders
// that only work against a test setup.
func Default() *Config {
	cfg := &Config{
		Mail: MailConfig{
			To:       "test@domain.local",
			From:     "test@domain.local",
			Host:     "smtp.domain.local",
			User:     "test@domain.local",
			Password: "password",
			Port:     465,
			Subject:  "TEST",
		},
		Redmine: RedmineConfig{
			URL:    "http://localhost",
			APIKey: "key",
		},
		Metrics: MetricsConfig{
			Job: "redmine-alarm",
		},
		Raw: make(map[string]map[string]string),
	}
	cfg.Redmine.Host = hostOf(cfg.Redmine.URL)
	return cfg
}

// Load overlays the file at path onto the defaults. A missing file keeps the
// defaults silently; parse problems are logged and loading carries on with
// whatever was read.
func Load(path string, log *zap.Logger) *Config {
	log = logging.OrNop(log)
	cfg := Default()

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		cfg.loadFile(path, log)
	} else {
		log.Debug("config file not found, using defaults", zap.String("path", path))
	}

	cfg.loadEnv()
	cfg.Redmine.Host = hostOf(cfg.Redmine.URL)
	return cfg
}

func (c *Config) loadFile(path string, log *zap.Logger) {
	f, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:     true,
		AllowBooleanKeys:    true,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		log.Error("could not parse config file", zap.String("path", path), zap.Error(err))
		return
	}

	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				log.Error("config file contains no section headers before first key",
					zap.String("path", path),
					zap.Strings("ignored", section.KeyStrings()),
				)
			}
			continue
		}

		for _, key := range section.Keys() {
			c.Set(name, key.Name(), key.String(), log)
		}
	}
}

// Set overwrites or inserts a single (section, key) value. Surrounding
// quotes are stripped.
func (c *Config) Set(section, key, value string, log *zap.Logger) {
	log = logging.OrNop(log)
	value = strings.Trim(value, `'"`)

	if c.Raw[section] == nil {
		c.Raw[section] = make(map[string]string)
	}
	c.Raw[section][key] = value

	switch section {
	case SectionMail:
		switch key {
		case "to":
			c.Mail.To = value
		case "from":
			c.Mail.From = value
		case "host":
			c.Mail.Host = value
		case "user":
			c.Mail.User = value
		case "password":
			c.Mail.Password = value
		case "subject":
			c.Mail.Subject = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				log.Error("invalid mail port, keeping default", zap.String("value", value), zap.Int("default", c.Mail.Port))
				return
			}
			c.Mail.Port = port
		case "starttls":
			on, err := parseBool(value)
			if err != nil {
				log.Error("invalid starttls value, keeping default", zap.String("value", value))
				return
			}
			c.Mail.StartTLS = on
		}
	case SectionRedmine:
		switch key {
		case "url":
			c.Redmine.URL = value
		case "api-key":
			c.Redmine.APIKey = value
		case "rate-limit":
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil || rate < 0 {
				log.Error("invalid rate-limit, keeping default", zap.String("value", value))
				return
			}
			c.Redmine.RateLimit = rate
		}
	case SectionMetrics:
		switch key {
		case "pushgateway":
			c.Metrics.Pushgateway = value
		case "job":
			c.Metrics.Job = value
		}
	}
}

func (c *Config) loadEnv() {
	c.Redmine.URL = getEnvOrDefault("REDMINE_URL", c.Redmine.URL)
	c.Redmine.APIKey = getEnvOrDefault("REDMINE_API_KEY", c.Redmine.APIKey)
	c.Mail.Password = getEnvOrDefault("MAIL_PASSWORD", c.Mail.Password)
}

// Recipients splits mail.to on commas, dropping blanks.
func (m MailConfig) Recipients() []string {
	var to []string
	for _, addr := range strings.Split(m.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return to
}

func (c *Config) Recipients() []string {
	return c.Mail.Recipients()
}

// Masked returns a copy safe to print: secrets are hidden.
func (c *Config) Masked() Config {
	m := *c
	m.Mail.Password = mask(c.Mail.Password)
	m.Redmine.APIKey = mask(c.Redmine.APIKey)

	m.Raw = make(map[string]map[string]string, len(c.Raw))
	for section, keys := range c.Raw {
		m.Raw[section] = make(map[string]string, len(keys))
		for k, v := range keys {
			if k == "password" || k == "api-key" {
				v = mask(v)
			}
			m.Raw[section][k] = v
		}
	}
	return m
}

func mask(s string) string {
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return strings.Repeat("*", len(s))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
