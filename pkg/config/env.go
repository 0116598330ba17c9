package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvAPIBaseURL        = "API_BASE_URL"
	EnvRequestTimeout    = "REQUEST_TIMEOUT"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFile           = "LOG_FILE"
	EnvDelayBetweenTests = "DELAY_BETWEEN_TESTS"
	EnvTestEmail         = "TEST_EMAIL"
	EnvTestPassword      = "TEST_PASSWORD"

	DefaultAPIBaseURL = "http://localhost:5000"
)

// Env holds the process environment knobs shared with the external test client.
type Env struct {
	APIBaseURL    string
	APIBaseURLSet bool

	RequestTimeout    time.Duration
	LogLevel          string
	LogFile           string
	DelayBetweenTests time.Duration
	TestEmail         string
	TestPassword      string
}

// LoadEnv reads the environment through viper. Unset variables fall back to defaults.
func LoadEnv() Env {
	return loadEnv(viper.New())
}

func loadEnv(v *viper.Viper) Env {
	v.AutomaticEnv()
	for _, key := range []string{
		EnvAPIBaseURL, EnvRequestTimeout, EnvLogLevel, EnvLogFile,
		EnvDelayBetweenTests, EnvTestEmail, EnvTestPassword,
	} {
		_ = v.BindEnv(key)
	}
	v.SetDefault(EnvRequestTimeout, 30)
	v.SetDefault(EnvLogFile, "test_results.log")
	v.SetDefault(EnvDelayBetweenTests, 0.5)
	v.SetDefault(EnvTestEmail, "admin@synqcore.com")

	env := Env{
		APIBaseURL:        strings.TrimSpace(v.GetString(EnvAPIBaseURL)),
		RequestTimeout:    time.Duration(v.GetFloat64(EnvRequestTimeout) * float64(time.Second)),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString(EnvLogLevel))),
		LogFile:           v.GetString(EnvLogFile),
		DelayBetweenTests: time.Duration(v.GetFloat64(EnvDelayBetweenTests) * float64(time.Second)),
		TestEmail:         v.GetString(EnvTestEmail),
		TestPassword:      v.GetString(EnvTestPassword),
	}
	env.APIBaseURLSet = env.APIBaseURL != ""
	if !env.APIBaseURLSet {
		env.APIBaseURL = DefaultAPIBaseURL
	}
	if env.RequestTimeout <= 0 {
		env.RequestTimeout = 30 * time.Second
	}
	return env
}

// LogFileSet reports whether LOG_FILE was given explicitly.
func LogFileSet() bool {
	v := viper.New()
	_ = v.BindEnv(EnvLogFile)
	return v.IsSet(EnvLogFile)
}

// Map renders the environment as it is exported to collaborators.
func (e Env) Map() map[string]string {
	return map[string]string{
		EnvAPIBaseURL:        e.APIBaseURL,
		EnvRequestTimeout:    strconv.FormatFloat(e.RequestTimeout.Seconds(), 'f', -1, 64),
		EnvLogLevel:          e.LogLevel,
		EnvLogFile:           e.LogFile,
		EnvDelayBetweenTests: strconv.FormatFloat(e.DelayBetweenTests.Seconds(), 'f', -1, 64),
		EnvTestEmail:         e.TestEmail,
		EnvTestPassword:      e.TestPassword,
	}
}
