package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/log"
)

// EnvPrefix is the prefix of environment variables bound to flags
const EnvPrefix = "OPSMGR"

// Defaults
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultConvergeTimeout = 30 * time.Minute
	DefaultRequestTimeout  = 60 * time.Second
)

// Flag names shared by the CLI and the config file
const (
	FlagConfig          = "config"
	FlagMMS             = "mms"
	FlagUser            = "user"
	FlagKey             = "key"
	FlagVerify          = "verify"
	FlagNoVerify        = "no-verify"
	FlagCAFile          = "ca-file"
	FlagTimeout         = "timeout"
	FlagErrorLogFile    = "error-logfile"
	FlagLogLevel        = "log-level"
	FlagJSONLogs        = "json-logs"
	FlagStateDir        = "state-dir"
	FlagPollInterval    = "poll-interval"
	FlagConvergeTimeout = "converge-timeout"
	FlagLeaseTTL        = "lease-ttl"
	FlagMetricsTextfile = "metrics-textfile"
)

// TLSMode controls server certificate verification: verify against the
// system roots, skip verification, or verify against a CA bundle
type TLSMode struct {
	Verify bool
	CAFile string
}

// String renders the mode the way it is passed on the command line
func (m TLSMode) String() string {
	switch {
	case !m.Verify:
		return "false"
	case m.CAFile != "":
		return m.CAFile
	default:
		return "true"
	}
}

// ParseTLSMode accepts "true", "false" or a CA bundle path
func ParseTLSMode(s string) TLSMode {
	if b, err := strconv.ParseBool(s); err == nil {
		return TLSMode{Verify: b}
	}
	if s == "" {
		return TLSMode{Verify: true}
	}
	return TLSMode{Verify: true, CAFile: s}
}

// Config is the explicit configuration handed to every component
type Config struct {
	// BaseURL of Ops Manager, e.g. https://opsmanager.example.com:8443
	BaseURL string
	User    string
	APIKey  string
	TLS     TLSMode

	// Timeout bounds a single HTTP request
	Timeout time.Duration

	// PollInterval is the fixed wait between goal state checks
	PollInterval time.Duration

	// ConvergeTimeout bounds the wait for goal state. Zero waits forever.
	ConvergeTimeout time.Duration

	// LeaseTTL is the length of maintenance windows. Zero means a window
	// that never ends on its own.
	LeaseTTL time.Duration

	// StateDir holds the lease journal. Empty disables the journal.
	StateDir string

	ErrorLogFile    string
	LogLevel        log.Level
	JSONLogs        bool
	MetricsTextfile string
}

// Default returns a Config with defaults applied
func Default() Config {
	return Config{
		TLS:             TLSMode{Verify: true},
		Timeout:         DefaultRequestTimeout,
		PollInterval:    DefaultPollInterval,
		ConvergeTimeout: DefaultConvergeTimeout,
		LogLevel:        log.DebugLevel,
	}
}

// RegisterFlags adds the global connection flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "Config file (default $HOME/.opsmgr.yaml)")
	fs.StringP(FlagMMS, "m", "", "Base Ops Manager URL")
	fs.StringP(FlagUser, "u", "", "Ops Manager user name")
	fs.StringP(FlagKey, "k", "", "Ops Manager user REST API key")
	fs.String(FlagVerify, "true", "Verify TLS certificates: true, false or path to a CA bundle")
	fs.Bool(FlagNoVerify, false, "Disable TLS certificate verification")
	fs.String(FlagCAFile, "", "Path to a CA bundle used to verify Ops Manager")
	fs.Duration(FlagTimeout, d.Timeout, "Timeout of a single API request")
	fs.StringP(FlagErrorLogFile, "l", "", "Path to the error log file")
	fs.String(FlagLogLevel, string(d.LogLevel), "Log level: debug, info, warn, error")
	fs.Bool(FlagJSONLogs, false, "Emit JSON logs")
	fs.String(FlagStateDir, defaultStateDir(), "Directory of the local lease journal (empty disables it)")
	fs.Duration(FlagPollInterval, d.PollInterval, "Wait between automation status polls")
	fs.Duration(FlagConvergeTimeout, d.ConvergeTimeout, "Maximum wait for the goal state (0 waits forever)")
	fs.Duration(FlagLeaseTTL, d.LeaseTTL, "Maintenance window length (0 never ends)")
	fs.String(FlagMetricsTextfile, "", "Write Prometheus metrics to this file on exit")
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".opsmgr")
}

// Load resolves the configuration from flags, environment and config file,
// in that order of precedence
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(FlagConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(".opsmgr")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	tls := ParseTLSMode(v.GetString(FlagVerify))
	if v.GetBool(FlagNoVerify) {
		tls = TLSMode{Verify: false}
	}
	if ca := v.GetString(FlagCAFile); ca != "" && tls.Verify {
		tls.CAFile = ca
	}

	return Config{
		BaseURL:         strings.TrimRight(v.GetString(FlagMMS), "/"),
		User:            v.GetString(FlagUser),
		APIKey:          v.GetString(FlagKey),
		TLS:             tls,
		Timeout:         v.GetDuration(FlagTimeout),
		PollInterval:    v.GetDuration(FlagPollInterval),
		ConvergeTimeout: v.GetDuration(FlagConvergeTimeout),
		LeaseTTL:        v.GetDuration(FlagLeaseTTL),
		StateDir:        v.GetString(FlagStateDir),
		ErrorLogFile:    v.GetString(FlagErrorLogFile),
		LogLevel:        log.Level(v.GetString(FlagLogLevel)),
		JSONLogs:        v.GetBool(FlagJSONLogs),
		MetricsTextfile: v.GetString(FlagMetricsTextfile),
	}, nil
}

// Validate reports every problem of the configuration at once
func (c *Config) Validate() error {
	var err error

	if c.BaseURL == "" {
		err = multierr.Append(err, errors.New("no Ops Manager URL specified (--mms)"))
	} else if u, parseErr := url.Parse(c.BaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("invalid Ops Manager URL %q", c.BaseURL))
	}

	if c.User == "" {
		err = multierr.Append(err, errors.New("no user specified (--user)"))
	}
	if c.APIKey == "" {
		err = multierr.Append(err, errors.New("no API key specified (--key)"))
	}

	if c.TLS.CAFile != "" {
		if _, statErr := os.Stat(c.TLS.CAFile); statErr != nil {
			err = multierr.Append(err, fmt.Errorf("CA bundle not readable: %w", statErr))
		}
	}

	if c.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("poll interval must be positive"))
	}
	if c.ConvergeTimeout < 0 {
		err = multierr.Append(err, errors.New("converge timeout must not be negative"))
	}
	if c.LeaseTTL < 0 {
		err = multierr.Append(err, errors.New("lease TTL must not be negative"))
	}

	switch c.LogLevel {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return err
}
