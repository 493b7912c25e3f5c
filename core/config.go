package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // attendance.timezone must resolve on hosts without a zoneinfo db

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server     ServerConfig
		Database   DatabaseConfig
		Attendance AttendanceConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		AllowOrigins       []string
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	AttendanceConfig struct {
		SessionTTL    time.Duration
		SweepInterval time.Duration
		CodeAttempts  int
		Timezone      string
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// LoadLocation resolves the time zone attendance days are bucketed in. An empty name is UTC.
func (ac AttendanceConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(ac.Timezone)
	if err != nil {
		return nil, fmt.Errorf("attendance.timezone %q: %w", ac.Timezone, err)
	}
	return loc, nil
}

// Location is LoadLocation for configs NewConfig already checked. It falls back to UTC.
func (ac AttendanceConfig) Location() *time.Location {
	loc, err := ac.LoadLocation()
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig loads the app configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the uppercased env name, eg. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Nexus")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "c9#2o-vk!8n@x^q1m+ze&4rj7t0b$w6h)p5(dy3=lsuf")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.allowOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "nexus")
	v.SetDefault("database.user", "nexus")
	v.SetDefault("database.password", "nexus")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "nexus.db")

	v.SetDefault("attendance.sessionTTL", 3*time.Minute)
	v.SetDefault("attendance.sweepInterval", 30*time.Second)
	v.SetDefault("attendance.codeAttempts", 10)
	v.SetDefault("attendance.timezone", "UTC")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			AllowOrigins:       v.GetStringSlice("server.allowOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Attendance: AttendanceConfig{
			SessionTTL:    v.GetDuration("attendance.sessionTTL"),
			SweepInterval: v.GetDuration("attendance.sweepInterval"),
			CodeAttempts:  v.GetInt("attendance.codeAttempts"),
			Timezone:      v.GetString("attendance.timezone"),
		},
	}

	// unknown zones are fatal, never UTC
	if _, err := conf.Attendance.LoadLocation(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}
