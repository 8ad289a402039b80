package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pechorka/pace-reader/pkg/fileparser"
)

const EnvPrefix = "PACER"

const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

const (
	defaultJSONStorePath = "./reading_state.json"
	defaultBoltStorePath = "./reading_state.db"
	defaultBooksDir      = "./books"
	defaultRate          = 20
	defaultInterval      = 10
	defaultMaxRate       = 1000
	defaultMaxInterval   = 24 * 60 * 60
	defaultRollbackWords = 30
	defaultRetryElapsed  = 30 * time.Second
	defaultMaxBookSize   = 20 * 1024 * 1024
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// Duration accepts "1m30s" style strings in json, yaml and env.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	TgToken string `json:"tg_token" yaml:"tg_token" envconfig:"TG_TOKEN"`

	// Debug keeps reading state in a temporary store.
	Debug bool `json:"debug" yaml:"debug" envconfig:"DEBUG"`

	StoreBackend string `json:"store_backend" yaml:"store_backend" envconfig:"STORE_BACKEND"`
	StorePath    string `json:"store_path" yaml:"store_path" envconfig:"STORE_PATH"`
	BooksDir     string `json:"books_dir" yaml:"books_dir" envconfig:"BOOKS_DIR"`

	// BookExts limits the served book formats, all supported ones when empty.
	BookExts []string `json:"book_exts" yaml:"book_exts" envconfig:"BOOK_EXTS"`

	// MaxBookSize limits books uploaded by admins, in bytes.
	MaxBookSize int64 `json:"max_book_size" yaml:"max_book_size" envconfig:"MAX_BOOK_SIZE"`

	// I18nPath is optional, the embedded translations are used without it.
	I18nPath string `json:"i18n_path" yaml:"i18n_path" envconfig:"I18N_PATH"`

	DefaultRate     int `json:"default_rate" yaml:"default_rate" envconfig:"DEFAULT_RATE"`
	DefaultInterval int `json:"default_interval" yaml:"default_interval" envconfig:"DEFAULT_INTERVAL"`
	MaxRate         int `json:"max_rate" yaml:"max_rate" envconfig:"MAX_RATE"`
	MaxInterval     int `json:"max_interval" yaml:"max_interval" envconfig:"MAX_INTERVAL"`

	// RollbackWords is how many words /stop rewinds. 30 when unset, zero or
	// negative disables the rewind.
	RollbackWords *int `json:"rollback_words" yaml:"rollback_words" envconfig:"ROLLBACK_WORDS"`

	StartDelay          Duration `json:"start_delay" yaml:"start_delay" envconfig:"START_DELAY"`
	SendRetryMaxElapsed Duration `json:"send_retry_max_elapsed" yaml:"send_retry_max_elapsed" envconfig:"SEND_RETRY_MAX_ELAPSED"`

	HTTPAddr  string  `json:"http_addr" yaml:"http_addr" envconfig:"HTTP_ADDR"`
	LogLevel  string  `json:"log_level" yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string  `json:"log_format" yaml:"log_format" envconfig:"LOG_FORMAT"`
	Admins    []int64 `json:"admins" yaml:"admins" envconfig:"ADMINS"`
}

// Load reads the optional config file at path, applies PACER_* environment
// overrides and fills in defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env")
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	return errors.Wrapf(err, "failed to parse config file %s", path)
}

// Normalize validates cfg and fills in defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.TgToken) == "" {
		return errors.New("telegram token is required")
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case "":
		cfg.StoreBackend = BackendJSON
	case BackendJSON, BackendBolt:
	default:
		return errors.Errorf("invalid store_backend %q; allowed: json, bolt", cfg.StoreBackend)
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultJSONStorePath
		if cfg.StoreBackend == BackendBolt {
			cfg.StorePath = defaultBoltStorePath
		}
	}
	if cfg.BooksDir == "" {
		cfg.BooksDir = defaultBooksDir
	}
	for i, ext := range cfg.BookExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !fileparser.Supported(ext) {
			return errors.Errorf("invalid book_exts value %q; allowed: %s", ext, strings.Join(fileparser.Extensions(), ", "))
		}
		cfg.BookExts[i] = ext
	}
	if cfg.MaxBookSize == 0 {
		cfg.MaxBookSize = defaultMaxBookSize
	}
	if cfg.MaxBookSize < 0 {
		return errors.New("max_book_size must not be negative")
	}

	if cfg.MaxRate == 0 {
		cfg.MaxRate = defaultMaxRate
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	if cfg.DefaultRate == 0 {
		cfg.DefaultRate = defaultRate
	}
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = defaultInterval
	}
	if cfg.MaxRate < 1 || cfg.MaxInterval < 1 {
		return errors.New("max_rate and max_interval must be positive")
	}
	if cfg.DefaultRate < 1 || cfg.DefaultRate > cfg.MaxRate {
		return errors.Errorf("default_rate must be in [1, %d]", cfg.MaxRate)
	}
	if cfg.DefaultInterval < 1 || cfg.DefaultInterval > cfg.MaxInterval {
		return errors.Errorf("default_interval must be in [1, %d]", cfg.MaxInterval)
	}
	if cfg.RollbackWords == nil {
		rollback := defaultRollbackWords
		cfg.RollbackWords = &rollback
	}
	if *cfg.RollbackWords < 0 {
		*cfg.RollbackWords = 0
	}
	if cfg.StartDelay < 0 {
		return errors.New("start_delay must not be negative")
	}
	if cfg.SendRetryMaxElapsed <= 0 {
		cfg.SendRetryMaxElapsed = Duration(defaultRetryElapsed)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = defaultLogFormat
	case "text", "json":
	default:
		return errors.Errorf("invalid log_format %q; allowed: text, json", cfg.LogFormat)
	}
	return nil
}

// SchedulerRollbackWords converts RollbackWords to the scheduler convention,
// where zero selects the default and a negative value disables the rewind.
func (c *Config) SchedulerRollbackWords() int {
	if c.RollbackWords == nil {
		return 0
	}
	if *c.RollbackWords == 0 {
		return -1
	}
	return *c.RollbackWords
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
