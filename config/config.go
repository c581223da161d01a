package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dylanconnolly/segon-client/logger"
)

// Config holds everything needed to run one or more participants against a
// game server.
type Config struct {
	ServerURL        string
	Sessions         int
	Username         string
	Password         string
	Strategy         string
	AnswerIndex      int
	MatchText        string
	Prime            bool
	CloseOnSendError bool
	RegisterAttempts int
	HTTPTimeout      time.Duration
	StatusAddr       string
	CORSOrigins      []string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	NatsURL          string
	LoggerConfigFile string
	Log              logger.Config
}

// FromEnv reads the SEGON_* environment variables, falling back to defaults
// for anything unset.
func FromEnv() Config {
	c := Config{}
	c.ServerURL = getenv("SEGON_SERVER", "http://localhost:3030")
	c.Sessions = getenvInt("SEGON_SESSIONS", 1)
	c.Username = getenv("SEGON_USERNAME", "player")
	c.Password = getenv("SEGON_PASSWORD", "password")
	c.Strategy = getenv("SEGON_STRATEGY", "fixed")
	c.AnswerIndex = getenvInt("SEGON_ANSWER", 1)
	c.MatchText = os.Getenv("SEGON_MATCH")
	c.Prime = getenvBool("SEGON_PRIME", false)
	c.CloseOnSendError = getenvBool("SEGON_CLOSE_ON_SEND_ERROR", true)
	c.RegisterAttempts = getenvInt("SEGON_REGISTER_ATTEMPTS", 5)
	c.HTTPTimeout = getenvDuration("SEGON_HTTP_TIMEOUT", 10*time.Second)
	c.StatusAddr = os.Getenv("SEGON_STATUS_ADDR")
	c.CORSOrigins = getenvList("SEGON_CORS_ORIGINS", []string{"*"})
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.RedisDB = getenvInt("REDIS_DB", 0)
	c.NatsURL = os.Getenv("NATS_URL")
	c.LoggerConfigFile = getenv("SEGON_LOGGER_CONFIG", "logger_config.json")

	c.Log = logger.DefaultConfig()
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.JSON = getenvBool("LOG_JSON", c.Log.JSON)
	c.Log.File = os.Getenv("LOG_FILE")
	return c
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server url is required")
	}
	if c.Sessions < 1 {
		return fmt.Errorf("sessions must be at least 1, got %d", c.Sessions)
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Sessions > 1 && isPrompt(c.Strategy) {
		return errors.New("the prompt strategy reads stdin and supports a single session")
	}
	if c.RegisterAttempts < 1 {
		return fmt.Errorf("register attempts must be at least 1, got %d", c.RegisterAttempts)
	}
	return nil
}

// LoadLoggerConfig overlays the JSON logger configuration at path onto base.
// A missing file is not an error.
func LoadLoggerConfig(path string, base logger.Config) (logger.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}
	defer file.Close()

	cfg := base
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return base, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func isPrompt(strategy string) bool {
	s := strings.ToLower(strategy)
	return s == "prompt" || s == "interactive"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(k)); err == nil {
		return b
	}
	return def
}

func getenvList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}
