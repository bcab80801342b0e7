package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Subject is one catalogue entry.
type Subject struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Category      string   `yaml:"category"`
	SignatureLook string   `yaml:"signature_look"`
	Queries       []string `yaml:"queries"`
}

// Config holds all application configuration.
type Config struct {
	GeminiAPIKey       string    `yaml:"gemini_api_key"`
	GeminiModel        string    `yaml:"gemini_model"`
	RateLimitPerMinute int       `yaml:"rate_limit_per_minute"`
	OutputDir          string    `yaml:"output_dir"`
	DBPath             string    `yaml:"db_path"`
	SupabaseURL        string    `yaml:"supabase_url"`
	SupabaseKey        string    `yaml:"supabase_key"`
	SupabaseTable      string    `yaml:"supabase_table"`
	TelegramToken      string    `yaml:"telegram_token"`
	TelegramChatID     int64     `yaml:"telegram_chat_id"`
	MetricsAddr        string    `yaml:"metrics_addr"`
	ScheduleTime       string    `yaml:"schedule_time"`
	Timezone           string    `yaml:"timezone"`
	LogLevel           string    `yaml:"log_level"`
	VideosPerQuery     int       `yaml:"videos_per_query"`
	FrameIntervalSecs  int       `yaml:"frame_interval_secs"`
	DownloadDelaySecs  int       `yaml:"download_delay_secs"`
	RequestTimeoutSecs int       `yaml:"request_timeout_secs"`
	Subjects           []Subject `yaml:"subjects"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		GeminiModel:        "gemini-2.0-flash",
		RateLimitPerMinute: 15,
		OutputDir:          "./output",
		DBPath:             "./dna-collector.db",
		SupabaseTable:      "celeb_makeup_dna",
		Timezone:           "UTC",
		LogLevel:           "info",
		VideosPerQuery:     3,
		FrameIntervalSecs:  30,
		DownloadDelaySecs:  5,
		RequestTimeoutSecs: 60,
		Subjects:           DefaultSubjects(),
	}
}

// DefaultSubjects is the built-in catalogue.
func DefaultSubjects() []Subject {
	return []Subject{
		{ID: "jennie", Name: "Jennie Kim", Category: "kpop", SignatureLook: "Sharp Cat Eye + Gradient Lip",
			Queries: []string{"Pony Jennie makeup tutorial", "제니 메이크업 크니"}},
		{ID: "wonyoung", Name: "Jang Wonyoung", Category: "kpop", SignatureLook: "Strawberry Moon Glass Skin",
			Queries: []string{"Pony Wonyoung makeup", "장원영 메이크업"}},
		{ID: "han_sohee", Name: "Han Sohee", Category: "actress", SignatureLook: "Effortless Cool-Girl Glow",
			Queries: []string{"Han Sohee makeup tutorial", "한소희 메이크업"}},
		{ID: "suzy", Name: "Suzy Bae", Category: "actress", SignatureLook: "Clean Girl No-Makeup Makeup",
			Queries: []string{"Suzy natural makeup", "수지 내추럴 메이크업"}},
		{ID: "karina", Name: "Karina (aespa)", Category: "kpop", SignatureLook: "Futuristic Ice Queen",
			Queries: []string{"Karina aespa makeup", "카리나 메이크업"}},
		{ID: "hanni", Name: "Hanni (NewJeans)", Category: "kpop", SignatureLook: "Fresh Y2K Doll",
			Queries: []string{"Hanni NewJeans makeup", "하니 메이크업"}},
		{ID: "hoyeon", Name: "Jung Hoyeon", Category: "actress", SignatureLook: "Editorial High Fashion",
			Queries: []string{"Hoyeon Jung makeup editorial", "정호연 메이크업"}},
		{ID: "taylor", Name: "Taylor Swift", Category: "global", SignatureLook: "Classic Red Lip Americana",
			Queries: []string{"Taylor Swift makeup tutorial", "테일러 스위프트 메이크업"}},
	}
}

// Load reads an optional YAML config file and applies environment overrides.
// A missing file is not an error. DNA_COLLECTOR_CONFIG overrides path.
// Validation is left to the caller since what is required depends on flags.
func Load(path string) (Config, error) {
	if envPath := os.Getenv("DNA_COLLECTOR_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("config file not found, using defaults and environment", "path", path)
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"GEMINI_API_KEY", &cfg.GeminiAPIKey},
		{"SUPABASE_URL", &cfg.SupabaseURL},
		{"SUPABASE_KEY", &cfg.SupabaseKey},
		{"TELEGRAM_TOKEN", &cfg.TelegramToken},
		{"DNA_COLLECTOR_DB", &cfg.DBPath},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks that required fields are present and values are valid.
// Supabase credentials are only required when uploading.
func (c *Config) Validate(skipUpload bool) error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("gemini_api_key is required (or set GEMINI_API_KEY)")
	}
	if !skipUpload {
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("supabase_url and supabase_key are required unless uploads are skipped")
		}
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}

	if c.ScheduleTime != "" {
		if err := ValidateTime(c.ScheduleTime); err != nil {
			return err
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	seen := make(map[string]bool, len(c.Subjects))
	for i, s := range c.Subjects {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("subjects[%d]: id and name are required", i)
		}
		if strings.ContainsAny(s.ID, `/\`) || s.ID == "." || s.ID == ".." {
			return fmt.Errorf("subjects[%d]: id %q must be a plain directory name", i, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("subjects[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}

	return nil
}

// Subject looks up a catalogue entry by ID.
func (c *Config) Subject(id string) (Subject, bool) {
	for _, s := range c.Subjects {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// SubjectIDs returns the catalogue IDs in order.
func (c *Config) SubjectIDs() []string {
	ids := make([]string, len(c.Subjects))
	for i, s := range c.Subjects {
		ids[i] = s.ID
	}
	return ids
}

// FrameInterval is FrameIntervalSecs as a duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalSecs) * time.Second
}

// DownloadDelay is DownloadDelaySecs as a duration.
func (c *Config) DownloadDelay() time.Duration {
	return time.Duration(c.DownloadDelaySecs) * time.Second
}

// RequestTimeout is RequestTimeoutSecs as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// ValidateTime checks that a time string is in valid HH:MM 24-hour format.
func ValidateTime(t string) error {
	if len(t) != 5 || t[2] != ':' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	if t[0] < '0' || t[0] > '9' || t[1] < '0' || t[1] > '9' ||
		t[3] < '0' || t[3] > '9' || t[4] < '0' || t[4] > '9' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	hour := (int(t[0]-'0') * 10) + int(t[1]-'0')
	minute := (int(t[3]-'0') * 10) + int(t[4]-'0')

	if hour > 23 {
		return fmt.Errorf("invalid time %q: hour must be 0-23", t)
	}
	if minute > 59 {
		return fmt.Errorf("invalid time %q: minute must be 0-59", t)
	}

	return nil
}
