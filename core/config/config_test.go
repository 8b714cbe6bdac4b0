package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/core/config"
)

// setenv sets key for the current test and restores the previous value after.
func setenv(key, value string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetenv(key string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Unsetenv(key)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		}
	})
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		setenv("DARWIN_ENV", "test")
		setenv("OPENAI_API_KEY", "sk-test")
		for _, key := range []string{
			"EMBEDDING_API_KEY", "CLASSIFIER_LLM_API_KEY", "CLUSTER_K", "CLUSTER_THRESHOLD_HIGH", "CLUSTER_THRESHOLD_LOW",
			"FIX_TRIGGER_MODE", "FIX_TRIGGER_PRODUCTS", "FIX_RECLAIM_MIN_IDLE", "MAX_FIX_ITERATIONS",
		} {
			unsetenv(key)
		}
	})

	It("applies defaults", func() {
		cfg, err := config.Load(config.ServiceTypeServer)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Cluster.K).To(Equal(5))
		Expect(cfg.Cluster.HighThreshold).To(Equal(0.75))
		Expect(cfg.Cluster.LowThreshold).To(Equal(0.60))
		Expect(cfg.Fix.TriggerMode).To(Equal("off"))
		Expect(cfg.Fix.MaxIterations).To(Equal(3))
		Expect(cfg.Worker.FixStream).To(Equal("stream:fix-jobs"))
		Expect(cfg.Worker.ReclaimMinIdle).To(Equal(30 * time.Minute))
	})

	It("shares the OpenAI key between embedding and classification", func() {
		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.APIKey).To(Equal("sk-test"))
		Expect(cfg.ClassifierLLM.APIKey).To(Equal("sk-test"))
		Expect(cfg.ClassifierLLM.Enabled()).To(BeTrue())
	})

	It("splits and trims the trigger product list", func() {
		setenv("FIX_TRIGGER_MODE", "allowlist")
		setenv("FIX_TRIGGER_PRODUCTS", " web, ,mobile ")

		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Fix.TriggerProducts).To(Equal([]string{"web", "mobile"}))
	})

	It("accepts durations in plain seconds", func() {
		setenv("FIX_RECLAIM_MIN_IDLE", "90")

		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Worker.ReclaimMinIdle).To(Equal(90 * time.Second))
	})

	It("rejects a low threshold above the high threshold", func() {
		setenv("CLUSTER_THRESHOLD_HIGH", "0.5")
		setenv("CLUSTER_THRESHOLD_LOW", "0.7")

		_, err := config.Load(config.ServiceTypeServer)

		Expect(err).To(MatchError(ContainSubstring("CLUSTER_THRESHOLD_LOW")))
	})

	It("rejects an unknown trigger mode", func() {
		setenv("FIX_TRIGGER_MODE", "sometimes")

		_, err := config.Load(config.ServiceTypeServer)

		Expect(err).To(MatchError(ContainSubstring("FIX_TRIGGER_MODE")))
	})

	It("requires an embedding key except for the CLI", func() {
		unsetenv("OPENAI_API_KEY")

		_, err := config.Load(config.ServiceTypeWorker)
		Expect(err).To(MatchError(ContainSubstring("EMBEDDING_API_KEY")))

		_, err = config.Load(config.ServiceTypeCLI)
		Expect(err).NotTo(HaveOccurred())
	})
})
