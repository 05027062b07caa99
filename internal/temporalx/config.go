package temporalx

import (
	"strings"
	"time"
)

type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	DialTimeout       time.Duration `yaml:"dial_timeout"`
	DialMaxWait       time.Duration `yaml:"dial_max_wait"`
	DialBackoff       time.Duration `yaml:"dial_backoff"`
	DialBackoffMax    time.Duration `yaml:"dial_backoff_max"`
	AutoRegister      bool          `yaml:"auto_register_namespace"`
	RetentionDays     int           `yaml:"namespace_retention_days"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
}

// Enabled reports whether a Temporal frontend is configured. Without one the
// relay runs poll loops in process.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Address) != ""
}

func (c Config) WithDefaults() Config {
	c.Address = strings.TrimSpace(c.Address)
	c.Namespace = stringsOr(strings.TrimSpace(c.Namespace), "jobrelay")
	c.TaskQueue = stringsOr(strings.TrimSpace(c.TaskQueue), "jobrelay")
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	} else if c.DialMaxWait == 0 {
		c.DialMaxWait = 60 * time.Second
	}
	if c.DialBackoff <= 0 {
		c.DialBackoff = 250 * time.Millisecond
	}
	if c.DialBackoffMax <= 0 {
		c.DialBackoffMax = 5 * time.Second
	}
	if c.RetentionDays < 1 {
		c.RetentionDays = 7
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 4
	}
	return c
}

func (c Config) usesTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
