// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "http://zhjw.scu.edu.cn", cfg.Portal().BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Portal().Timeout)
	assert.Equal(t, 3, cfg.Login().MaxAttempts)
	assert.Equal(t, "欢迎您", cfg.Login().SuccessMarker)
	assert.Equal(t, 30, cfg.Evaluation().PageSize)
	assert.Equal(t, "kt", cfg.Evaluation().Flag)
	assert.Equal(t, time.Second, cfg.Evaluation().PhasePause)
	assert.Equal(t, 2*time.Second, cfg.Evaluation().TaskPause)
	assert.Equal(t, "100", cfg.Evaluation().Policy.ScoreValue)
	assert.Equal(t, "first", cfg.Evaluation().Policy.RadioStrategy)
	assert.Equal(t, "K_以上均无", cfg.Evaluation().Policy.NoneOfTheAbove)
	assert.Equal(t, "manual", cfg.Captcha().Solver)
	assert.Empty(t, cfg.Journal().URL)
	assert.Equal(t, "zh", cfg.Locale())

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		badURL := *cfg
		badURL.PortalCfg.BaseURL = "zhjw.scu.edu.cn"
		err := badURL.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "portal.base_url must be an http(s) URL")

		noAttempts := *cfg
		noAttempts.LoginCfg.MaxAttempts = 0
		err = noAttempts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login.max_attempts must be a positive integer")

		badSource := *cfg
		badSource.CredentialsCfg.Source = "keychain"
		err = badSource.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credentials.source")

		badFormat := *cfg
		badFormat.ReportCfg.Format = "xml"
		err = badFormat.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.format")
	})

	t.Run("Evaluation Validation", func(t *testing.T) {
		eval := NewDefaultConfig().EvaluationCfg
		assert.NoError(t, eval.Validate())

		last := eval
		last.Policy.RadioStrategy = "last"
		assert.NoError(t, last.Validate())

		random := eval
		random.Policy.RadioStrategy = "random"
		assert.Error(t, random.Validate())

		zeroPage := eval
		zeroPage.PageSize = 0
		assert.Error(t, zeroPage.Validate())

		noComment := eval
		noComment.Policy.Comment = ""
		assert.Error(t, noComment.Validate())
	})

	t.Run("Captcha Validation", func(t *testing.T) {
		c := CaptchaConfig{Solver: "ocr"}
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ocr.url is required")

		c.OCR.URL = "http://localhost:9898/ocr"
		assert.NoError(t, c.Validate())

		assert.Error(t, (&CaptchaConfig{Solver: "telepathy"}).Validate())
		assert.NoError(t, (&CaptchaConfig{Solver: "gemini", Gemini: LLMSolverConfig{Model: "gemini-2.5-flash"}}).Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
portal:
  base_url: "https://portal.example.edu"
  request_rate: 2.5
evaluation:
  phase_pause: 250ms
  policy:
    radio_strategy: last
journal:
  url: "sqlite://quickeval.db"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "https://portal.example.edu", cfg.Portal().BaseURL)
		assert.Equal(t, 2.5, cfg.Portal().RequestRate)
		assert.Equal(t, 250*time.Millisecond, cfg.Evaluation().PhasePause)
		assert.Equal(t, "last", cfg.Evaluation().Policy.RadioStrategy)
		assert.Equal(t, "sqlite://quickeval.db", cfg.Journal().URL)
		// Untouched defaults survive.
		assert.Equal(t, "kt", cfg.Evaluation().Flag)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("login.max_attempts", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("QUICKEVAL_PASSWORD", "hunter2")
		t.Setenv("QUICKEVAL_GEMINI_API_KEY", "gm-key")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "hunter2", cfg.Credentials().Password)
		assert.Equal(t, "gm-key", cfg.Captcha().Gemini.APIKey)
		assert.Equal(t, "sk-test", cfg.Captcha().OpenAI.APIKey)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetLocale("en")
	iface.SetReportFormat("yaml")
	iface.SetReportOutput("run.yaml")
	iface.SetRadioStrategy("last")

	assert.Equal(t, "en", cfg.Locale())
	assert.Equal(t, ReportConfig{Format: "yaml", Output: "run.yaml"}, cfg.Report())
	assert.Equal(t, "last", cfg.Evaluation().Policy.RadioStrategy)
}
