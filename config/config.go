package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Events      EventsConfig      `mapstructure:"events"`
	Security    SecurityConfig    `mapstructure:"security"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// SOAPLocation is advertised as the soap:address of the WSDL.
	SOAPLocation string `mapstructure:"soap_location"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	SeedSample   bool          `mapstructure:"seed_sample"`
	LogQueries   bool          `mapstructure:"log_queries"`
	// SlowQuery logs statements slower than this at warn level; 0 disables.
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

type EventsConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	LocalBuf      int    `mapstructure:"local_buf"`
}

type SecurityConfig struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// OpsAllowedIPs restricts the /ops endpoints. Empty allows everyone.
	OpsAllowedIPs []string `mapstructure:"ops_allowed_ips"`
}

type MaintenanceConfig struct {
	ConsistencyCheck string `mapstructure:"consistency_check"` // cron spec, empty disables
	// AuditPurge is the cron spec of the job deleting audit rows older than
	// AuditRetention. Either empty or zero disables it.
	AuditPurge     string        `mapstructure:"audit_purge"`
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error; defaults and ASHEN_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ASHEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.soap_location", "http://localhost:8000/soap")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/guilds.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.op_timeout", "5s")
	v.SetDefault("database.seed_sample", false)
	v.SetDefault("database.log_queries", false)
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("events.redis_addr", "")
	v.SetDefault("events.redis_password", "")
	v.SetDefault("events.redis_db", 0)
	v.SetDefault("events.local_buf", 256)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.ops_allowed_ips", []string{})
	v.SetDefault("maintenance.consistency_check", "@every 5m")
	v.SetDefault("maintenance.audit_purge", "@daily")
	v.SetDefault("maintenance.audit_retention", "720h")
}
