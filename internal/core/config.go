package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the session
// server and the clients connecting to it.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Port on which the networked connector accepts peers.
	Port int `mapstructure:"port"`
	// Number of server ticks per second.
	TickRate int `mapstructure:"tick_rate"`
	// Peers that send nothing for this long are disconnected.
	PeerTimeout time.Duration `mapstructure:"peer_timeout"`
	// How long a client waits when dialing a server.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// Maximum number of concurrent peers the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Protocol versions clients may authenticate with.
	SupportedVersions []string `mapstructure:"supported_versions"`
	// How long a reconnection token outlives its session after a disconnect.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// Number of protocol errors a peer may cause before it is kicked. 0 disables the limit.
	MaxProtocolErrors int `mapstructure:"max_protocol_errors"`
	// Encoded messages at least this large are gzip compressed. 0 disables compression.
	CompressionThreshold int `mapstructure:"compression_threshold"`

	RateLimit struct {
		Enabled           bool    `mapstructure:"enabled"`
		MessagesPerSecond float64 `mapstructure:"messages_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Lobby struct {
		// Maximum user count used when a lobby is created without one.
		DefaultMaxUserCount int `mapstructure:"default_max_user_count"`
		// Countdown used when a lobby starts itself after reaching its minimum user count.
		AutoStartDelay time.Duration `mapstructure:"auto_start_delay"`
	} `mapstructure:"lobby"`

	Replication struct {
		// Forces a full snapshot to every observer at this interval. 0 disables it.
		ResyncInterval time.Duration `mapstructure:"resync_interval"`
	} `mapstructure:"replication"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Either sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// Database file used by the sqlite engine.
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Dump every decoded message to the log.
		MessageLoggingEnabled bool `mapstructure:"message_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "WARPSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("port", 7777)
	v.SetDefault("tick_rate", 30)
	v.SetDefault("peer_timeout", 30*time.Second)
	v.SetDefault("connection_timeout", 5*time.Second)
	v.SetDefault("max_connections", 1024)
	v.SetDefault("supported_versions", []string{"1.0"})
	v.SetDefault("token_ttl", 5*time.Minute)
	v.SetDefault("max_protocol_errors", 50)
	v.SetDefault("compression_threshold", 1024)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.messages_per_second", 120)
	v.SetDefault("rate_limit.burst", 240)
	v.SetDefault("lobby.default_max_user_count", 8)
	v.SetDefault("lobby.auto_start_delay", 10*time.Second)
	v.SetDefault("replication.resync_interval", 0)
	v.SetDefault("logging.log_level", "info")
	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.filename", "warpsync.db")
	v.SetDefault("debugging.pprof_port", 4000)
}

// DefaultConfig returns a Config populated only with default values.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	config := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(config)
	return config
}

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ListenAddress returns the host:port pair the networked connector binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// TickInterval converts the configured tick rate into the duration of one tick.
func (c *Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.TickRate)
}

// IsVersionSupported reports whether clients speaking version may authenticate.
func (c *Config) IsVersionSupported(version string) bool {
	for _, v := range c.SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}
