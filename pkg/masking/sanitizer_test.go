package masking_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsforge/execcore/pkg/masking"
)

func TestSanitizer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LogMasker Sanitizer Suite")
}

var _ = Describe("Sanitizer", func() {
	var sanitizer *masking.Sanitizer

	BeforeEach(func() {
		sanitizer = masking.NewSanitizer()
	})

	Context("SanitizeWithFallback", func() {
		It("redacts a password assignment", func() {
			result, err := sanitizer.SanitizeWithFallback("password: secret123")
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(ContainSubstring("***REDACTED***"))
			Expect(result).NotTo(ContainSubstring("secret123"))
		})

		It("handles empty input", func() {
			result, err := sanitizer.SanitizeWithFallback("")
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(Equal(""))
		})

		It("preserves non-secret content", func() {
			input := "Deployment failed for app:v1.2.3 due to password: secret123 error"
			result, err := sanitizer.SanitizeWithFallback(input)
			Expect(err).ToNot(HaveOccurred())
			Expect(result).To(ContainSubstring("Deployment failed"))
			Expect(result).To(ContainSubstring("app:v1.2.3"))
			Expect(result).NotTo(ContainSubstring("secret123"))
		})
	})

	Context("SafeFallback", func() {
		It("redacts passwords with simple string matching", func() {
			result := sanitizer.SafeFallback("Connection failed: password: secret123 access denied")
			Expect(result).To(ContainSubstring("[REDACTED]"))
			Expect(result).NotTo(ContainSubstring("secret123"))
		})

		It("is case-insensitive", func() {
			for _, input := range []string{"PASSWORD: secret123", "Password: secret123", "TOKEN: abc789"} {
				Expect(sanitizer.SafeFallback(input)).To(ContainSubstring("[REDACTED]"))
			}
		})

		It("leaves content with no secrets untouched", func() {
			input := "This is a normal log message with no credentials"
			Expect(sanitizer.SafeFallback(input)).To(Equal(input))
		})

		It("handles multiple delimiter styles", func() {
			inputs := []string{
				"password:secret123",
				"password: secret123",
				"password: 'secret123'",
				`password: "secret123"`,
			}
			for _, input := range inputs {
				result := sanitizer.SafeFallback(input)
				Expect(result).NotTo(ContainSubstring("secret123"))
				Expect(result).To(ContainSubstring("[REDACTED]"))
			}
		})
	})

	Context("idempotence (masking completeness property)", func() {
		It("is a no-op on its own output", func() {
			input := "password: secret123 token: abc789 api_key: xyz999"
			once := sanitizer.Sanitize(input)
			twice := sanitizer.Sanitize(once)
			Expect(twice).To(Equal(once))
		})
	})

	Context("MaskValue", func() {
		It("masks strings nested inside maps and slices without changing shape", func() {
			input := map[string]any{
				"message": "password: secret123",
				"tags":    []any{"ok", "password: nested456"},
				"count":   3,
			}
			masked := sanitizer.MaskValue(input).(map[string]any)
			Expect(masked["message"]).To(ContainSubstring("***REDACTED***"))
			Expect(masked["count"]).To(Equal(3))
			tags := masked["tags"].([]any)
			Expect(tags[0]).To(Equal("ok"))
			Expect(tags[1]).To(ContainSubstring("***REDACTED***"))
		})
	})
})
