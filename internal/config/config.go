package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sleroq/keep-to-markdown/internal/infra/exportfs"
)

const (
	StoreTakeout = "takeout"
	StoreAPI     = "api"

	EnvPrefix = "KEEP2MD"

	DefaultMigrateLabel = "Ready to Export"
	DefaultSuccessLabel = "Succesfully Exported"
)

// Config is the resolved settings for one export run.
type Config struct {
	Store      string
	TakeoutDir string
	APIURL     string
	Username   string
	Password   string

	NotesDir     string
	MediaDir     string
	MigrateLabel string
	SuccessLabel string

	RateLimit float64
	RateBurst int
	Timeout   time.Duration

	KeepGoing          bool
	RemoveMigrateLabel bool
	Frontmatter        bool
	NoProgress         bool
	Verbose            bool

	ConfigFile string
}

// New returns a viper instance with defaults and environment bindings.
// KEEP2MD_NOTES_DIR maps to the notes-dir key.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("username", EnvPrefix+"_USERNAME", "GOOGLE_KEEP_USERNAME")
	_ = v.BindEnv("password", EnvPrefix+"_PASSWORD", "GOOGLE_KEEP_PASSWORD")

	v.SetDefault("store", StoreTakeout)
	v.SetDefault("takeout-dir", "")
	v.SetDefault("api-url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("notes-dir", "./notes/")
	v.SetDefault("media-dir", "./media/")
	v.SetDefault("migrate-label", DefaultMigrateLabel)
	v.SetDefault("success-label", DefaultSuccessLabel)
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("rate-burst", 1)
	v.SetDefault("timeout", "0s")
	v.SetDefault("keep-going", false)
	v.SetDefault("remove-migrate-label", false)
	v.SetDefault("frontmatter", false)
	v.SetDefault("no-progress", false)
	v.SetDefault("verbose", false)
	return v
}

// Load reads configFile (or the user config file when empty and present) into
// v and returns the validated settings. Flags bound to v win over everything.
func Load(v *viper.Viper, configFile string) (Config, error) {
	path := configFile
	if path == "" {
		path = userConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Store:              strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		TakeoutDir:         v.GetString("takeout-dir"),
		APIURL:             v.GetString("api-url"),
		Username:           v.GetString("username"),
		Password:           v.GetString("password"),
		NotesDir:           v.GetString("notes-dir"),
		MediaDir:           v.GetString("media-dir"),
		MigrateLabel:       v.GetString("migrate-label"),
		SuccessLabel:       v.GetString("success-label"),
		RateLimit:          v.GetFloat64("rate-limit"),
		RateBurst:          v.GetInt("rate-burst"),
		Timeout:            v.GetDuration("timeout"),
		KeepGoing:          v.GetBool("keep-going"),
		RemoveMigrateLabel: v.GetBool("remove-migrate-label"),
		Frontmatter:        v.GetBool("frontmatter"),
		NoProgress:         v.GetBool("no-progress"),
		Verbose:            v.GetBool("verbose"),
		ConfigFile:         v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreTakeout:
		if strings.TrimSpace(c.TakeoutDir) == "" {
			return fmt.Errorf("takeout store needs --takeout-dir")
		}
	case StoreAPI:
		if strings.TrimSpace(c.APIURL) == "" {
			return fmt.Errorf("api store needs --api-url")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreTakeout, StoreAPI)
	}
	if strings.TrimSpace(c.NotesDir) == "" || strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("notes and media directories are required")
	}
	if err := exportfs.CheckRoots(c.NotesDir, c.MediaDir); err != nil {
		return err
	}
	if c.Store == StoreTakeout {
		for _, root := range []string{c.NotesDir, c.MediaDir} {
			if exportfs.Within(c.TakeoutDir, root) {
				return fmt.Errorf("output directory %s contains the takeout directory %s", root, c.TakeoutDir)
			}
		}
	}
	if strings.TrimSpace(c.MigrateLabel) == "" || strings.TrimSpace(c.SuccessLabel) == "" {
		return fmt.Errorf("migrate and success labels must not be empty")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func userConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "keep-to-markdown", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// LoadDotEnv copies the variables of a KEY=value file into the process
// environment. Variables that are already set are left alone, and a missing
// file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}
