package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// DefaultPath is read when neither --config nor CONFIG_PATH is set
const DefaultPath = "config.yaml"

type Config struct {
	Server Server `yaml:"server"`

	Printers Printers `yaml:"printers"`

	Auth Auth `yaml:"auth"`
	JWT  JWT  `yaml:"jwt"`

	SMTP          *SMTP         `yaml:"smtp"`
	Notifications Notifications `yaml:"notifications"`
	MQTT          MQTT          `yaml:"mqtt"`

	Database Database `yaml:"database"`

	Watcher Watcher `yaml:"watcher"`
	Camera  Camera  `yaml:"camera"`
}

type Server struct {
	Address         string        `yaml:"address"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // text or json
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // WebSocket origins; empty allows all
}

// Printer is one entry of the printers mapping
type Printer struct {
	IP          string `yaml:"ip"`
	Port        int    `yaml:"port"`
	CameraPort  int    `yaml:"camera_port"`
	CameraPath  string `yaml:"camera_path"`
	NoCamera    bool   `yaml:"no_camera"`
	Description string `yaml:"description"`
}

// Printers keeps the mapping order of the config file
type Printers []NamedPrinter

type NamedPrinter struct {
	Name string
	Printer
}

func (p *Printers) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw yaml.MapSlice
	if err := unmarshal(&raw); err != nil {
		return err
	}
	out := make(Printers, 0, len(raw))
	for _, item := range raw {
		name, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("printer name %v must be a string", item.Key)
		}
		body, err := yaml.Marshal(item.Value)
		if err != nil {
			return fmt.Errorf("failed to read printer %s: %w", name, err)
		}
		var printer Printer
		if err := yaml.UnmarshalStrict(body, &printer); err != nil {
			return fmt.Errorf("invalid printer %s: %w", name, err)
		}
		out = append(out, NamedPrinter{Name: name, Printer: printer})
	}
	*p = out
	return nil
}

// Auth guards the API with a shared password. Password may be a bcrypt hash.
type Auth struct {
	Password         string `yaml:"password"`
	PasswordForRead  bool   `yaml:"password_for_read"`
	PasswordForWrite bool   `yaml:"password_for_write"`
}

type JWT struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"` // In Hours
}

type SMTP struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Encryption string `yaml:"encryption"` // none, starttls or tls
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
}

// Destinations lists the targets of one notification type
type Destinations struct {
	Emails     []string `yaml:"emails"`
	Webhooks   []string `yaml:"webhooks"`
	MQTTTopics []string `yaml:"mqtt_topics"`
}

type PrinterNotifications struct {
	OnDone   *Destinations `yaml:"on_done"`
	OnFailed *Destinations `yaml:"on_failed"`
}

type Notifications struct {
	OnDone   Destinations                    `yaml:"on_done"`
	OnFailed Destinations                    `yaml:"on_failed"`
	Printers map[string]PrinterNotifications `yaml:"printers"`
	Timeout  time.Duration                   `yaml:"timeout"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// Enabled reports whether a broker is configured
func (m MQTT) Enabled() bool {
	return m.Broker != ""
}

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether job history is persisted to Postgres
func (d Database) Enabled() bool {
	return d.Host != ""
}

type Watcher struct {
	Interval        time.Duration `yaml:"interval"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
	Disabled        bool          `yaml:"disabled"`
}

type Camera struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Load reads the file named by CONFIG_PATH, or DefaultPath
func Load() (*Config, error) {
	configPath := DefaultPath
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	return LoadFile(configPath)
}

// LoadFile reads, defaults and validates the config at path
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset value
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}
	if c.Server.CommandTimeout <= 0 {
		c.Server.CommandTimeout = 5 * time.Second
	}
	if c.Server.DialTimeout <= 0 {
		c.Server.DialTimeout = 3 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	for i := range c.Printers {
		p := &c.Printers[i].Printer
		if p.Port == 0 {
			p.Port = models.DefaultControlPort
		}
		if p.NoCamera {
			p.CameraPort = 0
			continue
		}
		if p.CameraPort == 0 {
			p.CameraPort = models.DefaultCameraPort
		}
		if p.CameraPath == "" {
			p.CameraPath = models.DefaultCameraPath
		}
	}

	if c.JWT.ExpiresIn <= 0 {
		c.JWT.ExpiresIn = 24
	}
	if c.SMTP != nil && c.SMTP.Encryption == "" {
		c.SMTP.Encryption = "starttls"
	}
	if c.SMTP != nil && c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.User
	}
	if c.Notifications.Timeout <= 0 {
		c.Notifications.Timeout = 30 * time.Second
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "flashforge-api-server"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Watcher.Interval <= 0 {
		c.Watcher.Interval = 60 * time.Second
	}
	if c.Watcher.SnapshotTimeout <= 0 {
		c.Watcher.SnapshotTimeout = 5 * time.Second
	}
	if c.Camera.SubscriberBuffer <= 0 {
		c.Camera.SubscriberBuffer = 4
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	if len(c.Printers) == 0 {
		errs = append(errs, errors.New("no printers configured"))
	}
	seen := make(map[string]bool, len(c.Printers))
	for _, p := range c.Printers {
		switch {
		case p.Name == "" || strings.ContainsAny(p.Name, "/ "):
			errs = append(errs, fmt.Errorf("printer name %q must be non-empty and contain no spaces or slashes", p.Name))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("duplicate printer %q", p.Name))
		}
		seen[p.Name] = true
		if p.IP == "" {
			errs = append(errs, fmt.Errorf("printer %s: ip is required", p.Name))
		}
		if p.Port <= 0 || p.Port > 65535 || p.CameraPort < 0 || p.CameraPort > 65535 {
			errs = append(errs, fmt.Errorf("printer %s: port out of range", p.Name))
		}
	}

	if (c.Auth.PasswordForRead || c.Auth.PasswordForWrite) && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth: password is required when password_for_read or password_for_write is set"))
	}

	if c.SMTP != nil {
		switch c.SMTP.Encryption {
		case "none", "starttls", "tls":
		default:
			errs = append(errs, fmt.Errorf("smtp: unknown encryption %q", c.SMTP.Encryption))
		}
		if c.SMTP.Host == "" || c.SMTP.Port <= 0 {
			errs = append(errs, errors.New("smtp: host and port are required"))
		}
	}

	all := []Destinations{c.Notifications.OnDone, c.Notifications.OnFailed}
	for name, override := range c.Notifications.Printers {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("notifications: unknown printer %q", name))
		}
		if override.OnDone != nil {
			all = append(all, *override.OnDone)
		}
		if override.OnFailed != nil {
			all = append(all, *override.OnFailed)
		}
	}
	for _, d := range all {
		if len(d.Emails) > 0 && c.SMTP == nil {
			errs = append(errs, errors.New("notifications: email destinations need an smtp section"))
			break
		}
	}
	for _, d := range all {
		if len(d.MQTTTopics) > 0 && !c.MQTT.Enabled() {
			errs = append(errs, errors.New("notifications: mqtt topics need an mqtt broker"))
			break
		}
	}

	return errors.Join(errs...)
}

// PrinterIdentities converts the printers section, keeping file order
func (c *Config) PrinterIdentities() []models.PrinterIdentity {
	out := make([]models.PrinterIdentity, 0, len(c.Printers))
	for _, p := range c.Printers {
		out = append(out, models.PrinterIdentity{
			Name:        p.Name,
			Host:        p.IP,
			ControlPort: p.Port,
			CameraPort:  p.CameraPort,
			CameraPath:  p.CameraPath,
		})
	}
	return out
}

// URL returns the connection URL used by migrate
func (d Database) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// DSN returns the lib/pq connection string
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}
