package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"darwin.app/engine/common/llm"
)

type readFileArgs struct {
	Path  string `json:"path" jsonschema:"description=Path relative to the repository root"`
	Limit int    `json:"limit,omitempty"`
}

var _ = Describe("ParseToolArguments", func() {
	It("decodes tool arguments into the target type", func() {
		args, err := llm.ParseToolArguments[readFileArgs](`{"path":"src/app.go","limit":20}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(args.Path).To(Equal("src/app.go"))
		Expect(args.Limit).To(Equal(20))
	})

	It("reports malformed arguments", func() {
		_, err := llm.ParseToolArguments[readFileArgs](`{"path":`)
		Expect(err).To(MatchError(ContainSubstring("parse tool arguments")))
	})
})

var _ = Describe("GenerateSchema", func() {
	It("inlines the object schema and forbids extra properties", func() {
		raw, err := json.Marshal(llm.GenerateSchema[readFileArgs]())
		Expect(err).NotTo(HaveOccurred())

		var schema map[string]any
		Expect(json.Unmarshal(raw, &schema)).To(Succeed())
		Expect(schema["type"]).To(Equal("object"))
		Expect(schema["additionalProperties"]).To(Equal(false))
		Expect(schema).NotTo(HaveKey("$ref"))
		Expect(schema["required"]).To(ConsistOf("path"))
	})
})

var _ = Describe("NewAgentClient", func() {
	It("requires an API key", func() {
		_, err := llm.NewAgentClient(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewAgentClient(llm.Config{Provider: "mystery", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults to the Anthropic provider", func() {
		c, err := llm.NewAgentClient(llm.Config{APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Model()).To(Equal("claude-sonnet-4-5-20250514"))
	})
})
