package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/skybrain/formrelay/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then development defaults apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":3001")
				convey.So(cfg.RateLimitMax, convey.ShouldEqual, config.DevelopmentRateLimit)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, config.DefaultAllowedOrigins)
				convey.So(cfg.IsProduction(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the production flag is set", func() {
			_ = os.Setenv("FORMRELAY_ENVIRONMENT", "production")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the production ceiling applies", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.IsProduction(), convey.ShouldBeTrue)
				convey.So(cfg.RateLimitMax, convey.ShouldEqual, config.ProductionRateLimit)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FORMRELAY_ADDR", ":8080")
			_ = os.Setenv("FORMRELAY_SMTP_USERNAME", "ops@skybrain.in")
			_ = os.Setenv("FORMRELAY_SMTP_PASSWORD", "app-secret")
			_ = os.Setenv("FORMRELAY_RATE_LIMIT_MAX", "12")
			_ = os.Setenv("FORMRELAY_RATE_LIMIT_WINDOW", "10m")
			_ = os.Setenv("FORMRELAY_ALLOWED_ORIGINS", "https://a.example,https://b.example")
			_ = os.Setenv("FORMRELAY_SHEETS_WEBHOOK_URL", "https://script.google.com/macros/s/abc/exec")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.SMTPUsername, convey.ShouldEqual, "ops@skybrain.in")
				convey.So(cfg.SMTPPassword, convey.ShouldEqual, "app-secret")
				convey.So(cfg.RateLimitMax, convey.ShouldEqual, 12)
				convey.So(cfg.RateLimitWindow, convey.ShouldEqual, 10*time.Minute)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
				convey.So(cfg.SheetsWebhookURL, convey.ShouldEqual, "https://script.google.com/macros/s/abc/exec")
			})

			convey.Convey("And the admin inbox falls back to the mail identity", func() {
				convey.So(cfg.AdminEmail, convey.ShouldEqual, "ops@skybrain.in")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
environment: production
admin_email: "leads@skybrain.in"
rate_limit_max: 7
webhook_timeout: 5s
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FORMRELAY_CONFIG", tmpFile)
			_ = os.Setenv("FORMRELAY_ADDR", ":8081") // env beats file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values fill in under env values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.Environment, convey.ShouldEqual, config.EnvProduction)
				convey.So(cfg.AdminEmail, convey.ShouldEqual, "leads@skybrain.in")
				convey.So(cfg.RateLimitMax, convey.ShouldEqual, 7)
				convey.So(cfg.WebhookTimeout, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FORMRELAY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("FORMRELAY_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("FORMRELAY_RATE_LIMIT_MAX", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		ctx := context.Background()
		defer clearConfigEnvVars()

		cases := map[string]map[string]string{
			"addr must not be empty":    {"FORMRELAY_ADDR": ""},
			"environment must be":       {"FORMRELAY_ENVIRONMENT": "staging"},
			"unknown rate_limit_store":  {"FORMRELAY_RATE_LIMIT_STORE": "redis"},
			"mongo_uri is required":     {"FORMRELAY_RATE_LIMIT_STORE": "mongo"},
			"background_concurrency":    {"FORMRELAY_BACKGROUND_CONCURRENCY": "-1"},
			"rate_limit_window must be": {"FORMRELAY_RATE_LIMIT_WINDOW": "0s"},
		}

		for want, vars := range cases {
			clearConfigEnvVars()
			for k, v := range vars {
				_ = os.Setenv(k, v)
			}

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, want)
		}
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"FORMRELAY_CONFIG",
		"FORMRELAY_ADDR",
		"FORMRELAY_ENVIRONMENT",
		"FORMRELAY_SMTP_USERNAME",
		"FORMRELAY_SMTP_PASSWORD",
		"FORMRELAY_RATE_LIMIT_MAX",
		"FORMRELAY_RATE_LIMIT_WINDOW",
		"FORMRELAY_RATE_LIMIT_STORE",
		"FORMRELAY_ALLOWED_ORIGINS",
		"FORMRELAY_SHEETS_WEBHOOK_URL",
		"FORMRELAY_BACKGROUND_CONCURRENCY",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "formrelay-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
