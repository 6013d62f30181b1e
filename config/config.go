/*
Package config loads application configuration via Viper.

Environment variables take priority (prefix MAGTRACK_, e.g. MAGTRACK_HTTP_PORT);
an optional config.yaml in the working directory or ./config supplies the rest.
*/
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config groups the application configuration.
type Config struct {
	App  AppConfig
	DB   DBConfig
	HTTP HTTPConfig
	Log  LogConfig
}

// AppConfig is general application configuration.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig is the SQLite configuration.
type DBConfig struct {
	Path string // file path, or ":memory:" for ephemeral storage
}

// HTTPConfig is the HTTP server configuration.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig is the logging configuration.
type LogConfig struct {
	Level string // trace, debug, info, warn, error
}

// Load reads configuration from environment variables and an optional
// config file. Env vars win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // the file is optional

	v.SetEnvPrefix("MAGTRACK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("app.env"),
			Name: v.GetString("app.name"),
		},
		DB: DBConfig{
			Path: v.GetString("db.path"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("http.host"),
			Port: v.GetInt("http.port"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "magtrack")
	v.SetDefault("db.path", "./data/magtrack.db")
	v.SetDefault("http.host", "")
	v.SetDefault("http.port", 8080)
	v.SetDefault("log.level", "info")
}
