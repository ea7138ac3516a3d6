package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/defender/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "defender-config-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.Chdir(origDir)
		os.RemoveAll(tempDir)
	})

	writeConfig := func(content string) {
		configPath := filepath.Join(tempDir, "defender.yaml")
		err := os.WriteFile(configPath, []byte(content), 0644)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tempDir)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Load", func() {
		Context("with a valid config file", func() {
			BeforeEach(func() {
				writeConfig(`
defender:
  command:
    payment-api:
      circuit-breaker:
        max-failures: 2
        call-timeout: 200ms
        reset-timeout: 2m
      dispatcher: payment-pool
  dispatcher:
    payment-pool:
      size: 8
  logging:
    level: debug
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should resolve configured keys", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				settings := cfg.ForKey("payment-api")
				Expect(settings.MaxFailures).To(Equal(2))
				Expect(settings.CallTimeout).To(Equal(200 * time.Millisecond))
				Expect(settings.ResetTimeout).To(Equal(2 * time.Minute))
				Expect(settings.Dispatcher).To(Equal("payment-pool"))
			})

			It("should resolve dispatcher sizes", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.DispatcherSize("payment-pool")).To(Equal(8))
				Expect(cfg.DispatcherSize("unknown")).To(BeZero())
			})

			It("should parse the logging level", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Logging.Level).To(Equal("debug"))
			})
		})

		Context("without a config file", func() {
			BeforeEach(func() {
				err := os.Chdir(tempDir)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should fall back to defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				settings := cfg.ForKey("some-unconfigured-key")
				Expect(settings.MaxFailures).To(Equal(config.DefaultMaxFailures))
				Expect(settings.CallTimeout).To(Equal(config.DefaultCallTimeout))
				Expect(settings.ResetTimeout).To(Equal(config.DefaultResetTimeout))
				Expect(settings.Dispatcher).To(BeEmpty())
			})
		})

		Context("with an invalid config file", func() {
			It("should reject a malformed duration", func() {
				writeConfig(`
defender:
  command:
    payment-api:
      circuit-breaker:
        max-failures: 2
        call-timeout: "200 bananas"
`)
				cfg, err := config.Load()
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})

			It("should reject an unknown logging level", func() {
				writeConfig(`
defender:
  logging:
    level: loud
`)
				cfg, err := config.Load()
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})
		})
	})

	Describe("ForKey", func() {
		It("should fill defaults for fields the file omits", func() {
			cfg := &config.Config{
				Commands: map[string]config.CommandConfig{
					"partial": {
						CircuitBreaker: config.BreakerConfig{MaxFailures: 7},
					},
				},
			}

			settings := cfg.ForKey("partial")
			Expect(settings.MaxFailures).To(Equal(7))
			Expect(settings.CallTimeout).To(Equal(config.DefaultCallTimeout))
			Expect(settings.ResetTimeout).To(Equal(config.DefaultResetTimeout))
		})

		It("should treat a zero call-timeout as disabled", func() {
			cfg := &config.Config{
				Commands: map[string]config.CommandConfig{
					"unbounded": {
						CircuitBreaker: config.BreakerConfig{CallTimeout: "0"},
					},
				},
			}

			Expect(cfg.ForKey("unbounded").CallTimeout).To(BeZero())
		})

		It("should default everything for a nil config", func() {
			var cfg *config.Config
			Expect(cfg.ForKey("anything")).To(Equal(config.DefaultSettings()))
		})
	})

	Describe("DefaultSettings", func() {
		It("should match the documented defaults", func() {
			settings := config.DefaultSettings()
			Expect(settings.MaxFailures).To(Equal(5))
			Expect(settings.CallTimeout).To(Equal(time.Second))
			Expect(settings.ResetTimeout).To(Equal(5 * time.Second))
		})
	})
})
