package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"heiten-crawler/internal/checkpoint"
	"heiten-crawler/internal/crawler"
)

type Config struct {
	ListURL    string     `json:"list_url"`
	Query      string     `json:"query"`
	SchemaFile string     `json:"schema_file"`
	Output     Output     `json:"output"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Fetch      Fetch      `json:"fetch"`
	Log        Log        `json:"log"`
}

type Output struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
	// File, when set, replaces the timestamped name.
	File   string `json:"file"`
	Format string `json:"format"`
}

type Checkpoint struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`
}

// Durations are Go duration strings ("30s").
type Fetch struct {
	Timeout     string `json:"timeout"`
	DialTimeout string `json:"dial_timeout"`
	SizeCap     int64  `json:"size_cap"`
	UserAgent   string `json:"user_agent"`
	MaxAttempts int    `json:"max_attempts"`
	RetryDelay  string `json:"retry_delay"`
	PoliteDelay string `json:"polite_delay"`
	PageDelay   string `json:"page_delay"`
}

type Log struct {
	Level string `json:"level"`
}

func Default() Config {
	return Config{
		ListURL:    "https://kaiten-heiten.com/category/restaurant/",
		Query:      "【閉店】",
		SchemaFile: "column_list.csv",
		Output: Output{
			Dir:    "./output/",
			Prefix: "attack_list",
			Format: "csv",
		},
		Checkpoint: Checkpoint{
			Driver:      checkpoint.DriverJSON,
			Path:        "history.json",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "heiten-crawler:checkpoint:",
		},
		Fetch: Fetch{
			Timeout:     "15s",
			DialTimeout: "5s",
			SizeCap:     5 * 1024 * 1024,
			UserAgent:   "heiten-crawler/1.0 (+https://kaiten-heiten.com)",
			MaxAttempts: 3,
			RetryDelay:  "30s",
			PoliteDelay: "3s",
			PageDelay:   "3s",
		},
		Log: Log{Level: "debug"},
	}
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// Load reads name (e.g. config.json5), then name.local.json5 on top of it,
// and fills anything left unset from Default. Neither file has to exist.
func Load(name string) (Config, error) {
	var out Config

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
	}

	prefix, ext := splitExt(filepath.Base(name))
	localPath := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))
	localFile, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override Config
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return out, fmt.Errorf("%s: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
	}

	if err := mergo.Merge(&out, Default()); err != nil {
		return out, err
	}
	return out, out.Validate()
}

func (c Config) Validate() error {
	var errs []error
	for _, d := range []struct{ name, value string }{
		{"fetch.timeout", c.Fetch.Timeout},
		{"fetch.dial_timeout", c.Fetch.DialTimeout},
		{"fetch.retry_delay", c.Fetch.RetryDelay},
		{"fetch.polite_delay", c.Fetch.PoliteDelay},
		{"fetch.page_delay", c.Fetch.PageDelay},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetch.max_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

// ParseDuration parses a duration string with a fallback.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) RetryPolicy() crawler.RetryPolicy {
	def := crawler.DefaultRetryPolicy()
	return crawler.RetryPolicy{
		MaxAttempts: c.Fetch.MaxAttempts,
		RetryDelay:  ParseDuration(c.Fetch.RetryDelay, def.RetryDelay),
		PoliteDelay: ParseDuration(c.Fetch.PoliteDelay, def.PoliteDelay),
	}
}

func (c Config) PageDelay() time.Duration {
	return ParseDuration(c.Fetch.PageDelay, 3*time.Second)
}

func (c Config) CheckpointOptions() checkpoint.Options {
	return checkpoint.Options{
		Driver:      c.Checkpoint.Driver,
		Path:        c.Checkpoint.Path,
		RedisAddr:   c.Checkpoint.RedisAddr,
		RedisPrefix: c.Checkpoint.RedisPrefix,
	}
}

// OutputPath is Output.File when set, otherwise
// <dir>/<prefix>_<YYYYMMDDhhmm>.<format>.
func (c Config) OutputPath(now time.Time) string {
	if c.Output.File != "" {
		return c.Output.File
	}
	name := fmt.Sprintf("%s_%s.%s", c.Output.Prefix, now.Format("200601021504"), c.Output.Format)
	return filepath.Join(c.Output.Dir, name)
}
