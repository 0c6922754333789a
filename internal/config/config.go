package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	// NodeAddress is this peer's reachable endpoint, gossiped to the
	// community via introduce_user.
	NodeAddress string

	// DBDriver selects the replica backend: "sqlite" (default, one file
	// per peer) or "mysql" for shared-infrastructure deployments.
	DBDriver   string
	SQLitePath string
	MySQLHost  string
	MySQLPort  string
	MySQLDB    string
	MySQLUser  string
	MySQLPass  string

	// RedisAddr empty disables the idempotency middleware.
	RedisAddr     string
	RedisDB       int
	RedisPingSecs int

	IdempTTLSecs    int
	SignTimeoutSecs int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	return &Config{
		AppPort:     getenv("APP_PORT", "8080"),
		NodeAddress: getenv("NODE_ADDRESS", "local"),

		DBDriver:   getenv("DB_DRIVER", "sqlite"),
		SQLitePath: getenv("SQLITE_PATH", "market.db"),
		MySQLHost:  getenv("MYSQL_HOST", "mysql"),
		MySQLPort:  getenv("MYSQL_PORT", "3306"),
		MySQLDB:    getenv("MYSQL_DB", "market"),
		MySQLUser:  getenv("MYSQL_USER", "market"),
		MySQLPass:  getenv("MYSQL_PASS", "market"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
		RedisPingSecs: getenvInt("REDIS_PING_TIMEOUT_SECONDS", 5),

		IdempTTLSecs:    getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		SignTimeoutSecs: getenvInt("SIGN_TIMEOUT_SECONDS", 30),
	}
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.SignTimeoutSecs <= 0 {
		return errors.New("SIGN_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func (c *Config) SignTimeout() time.Duration {
	return time.Duration(c.SignTimeoutSecs) * time.Second
}

func (c *Config) IdempTTL() time.Duration {
	return time.Duration(c.IdempTTLSecs) * time.Second
}

func (c *Config) RedisPingTimeout() time.Duration {
	return time.Duration(c.RedisPingSecs) * time.Second
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	// parseTime needed for DATETIME columns
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
