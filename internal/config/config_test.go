package config_test

import (
	"testing"
	"time"

	"github.com/skybrain/formrelay/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":3001")
			convey.So(cfg.Environment, convey.ShouldEqual, config.EnvDevelopment)
			convey.So(cfg.SMTPHost, convey.ShouldEqual, "smtp.gmail.com")
			convey.So(cfg.SMTPPort, convey.ShouldEqual, 465)
			convey.So(cfg.RateLimitWindow, convey.ShouldEqual, 15*time.Minute)
			convey.So(cfg.RateLimitStore, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.BackgroundConcurrency, convey.ShouldEqual, 0)
		})

		convey.Convey("And the frontend URL joins the allow-list", func() {
			cfg.AllowedOrigins = []string{"https://skybrain.in"}
			cfg.FrontendURL = "https://preview.skybrain.in"
			convey.So(cfg.Origins(), convey.ShouldResemble, []string{"https://skybrain.in", "https://preview.skybrain.in"})
		})
	})
}
