package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		Build            string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string
		WorkDir          string

		Server   ServerConfig
		Database DatabaseConfig
		Stats    StatsConfig
	}

	ServerConfig struct {
		Host                      string
		APIHost                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	StatsConfig struct {
		RankingLimit      int // unprivileged callers
		RankingLimitStaff int
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "EduAvalia")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "v2y#%z$m&9e8_0kq)4+x7l^s=wj@5(h!gc3*u6pbfnr1aodti")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.apiHost", "0.0.0.0:8000")
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.name", "eduavalia")
	conf.SetDefault("database.user", "eduavalia")
	conf.SetDefault("database.password", "eduavalia")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("stats.rankingLimit", 5)
	conf.SetDefault("stats.rankingLimitStaff", 10)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetDefault("env", env)
	conf.SetDefault("testMode", env == "TEST")
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()
	conf.SetDefault("workDir", wd)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              conf.GetString("env"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		Build:            conf.GetString("build"),
		SecretKey:        conf.GetString("secretKey"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		WorkDir:          conf.GetString("workDir"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			APIHost:                   conf.GetString("server.apiHost"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Stats: StatsConfig{
			RankingLimit:      conf.GetInt("stats.rankingLimit"),
			RankingLimitStaff: conf.GetInt("stats.rankingLimitStaff"),
		},
	}
}
