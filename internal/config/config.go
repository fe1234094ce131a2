package config

import (
	"time"

	"github.com/maxviazov/storegate/internal/logger"
)

type Config struct {
	Logger        logger.LoggerConfig `mapstructure:"logger"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cassandra     CassandraConfig     `mapstructure:"cassandra"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// GatewayConfig applies to every backend gateway.
type GatewayConfig struct {
	// StrictFind reports an unreachable store on lookups instead of "absent".
	StrictFind bool `mapstructure:"strict_find"`
}

// PostgresConfig mirrors pgxpool tuning knobs; durations are in seconds like pgxpool docs.
type PostgresConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Host              string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port              int    `mapstructure:"port" validate:"required_if=Enabled true,gte=0,lte=65535"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	DBName            string `mapstructure:"dbname" validate:"required_if=Enabled true"`
	SSLMode           string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns          int32  `mapstructure:"max_conns" validate:"gte=0"`
	MinConns          int32  `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime   int    `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   int    `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod int    `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port        int           `mapstructure:"port" validate:"required_if=Enabled true,gte=0,lte=65535"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" validate:"gte=0"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size" validate:"gte=0"`
}

type CassandraConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Hosts             []string      `mapstructure:"hosts" validate:"required_if=Enabled true,dive,required"`
	Port              int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Keyspace          string        `mapstructure:"keyspace" validate:"required_if=Enabled true"`
	Consistency       string        `mapstructure:"consistency" validate:"omitempty,oneof=one two three quorum all local_quorum each_quorum local_one"`
	ReplicationFactor int           `mapstructure:"replication_factor" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
}

type ElasticsearchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addresses []string      `mapstructure:"addresses" validate:"required_if=Enabled true,dive,url"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Index     string        `mapstructure:"index" validate:"required_if=Enabled true"`
	Timeout   time.Duration `mapstructure:"timeout"`
}
