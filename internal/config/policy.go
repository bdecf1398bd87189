package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultPersona is prepended to the final user turn of every completion
// request. Prior turns stay raw so the persona is not repeated in context.
const defaultPersona = `SYSTEM GUIDELINES (Enhanced):
1. Maintain context. 2. For complex queries: provide key points with 🔑. 3. Verify facts.
4. Use structured responses. 5. Use analogies. 6. Be conversational. 7. Self-correct.
8. On 'who are you', 'your name', etc., respond only with "I am ChatIQ bot made by ChatIQ AI."
9. Adapt to user's language.`

var defaultVerificationKeywords = []string{
	"fact", "statistic", "number", "historical", "scientific",
	"medical", "technical", "figure", "data", "research",
}

var defaultVulgarityKeywords = []string{"badword", "offensive"}

// Policy bundles the persona text and the keyword lists driving the
// verification pass and the vulgarity screen.
type Policy struct {
	Persona              string   `yaml:"persona"`
	VerificationKeywords []string `yaml:"verification_keywords"`
	VulgarityKeywords    []string `yaml:"vulgarity_keywords"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Persona:              defaultPersona,
		VerificationKeywords: defaultVerificationKeywords,
		VulgarityKeywords:    defaultVulgarityKeywords,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. Fields left
// empty in the file keep their built-in values.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file Policy
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	if file.Persona != "" {
		p.Persona = file.Persona
	}
	if len(file.VerificationKeywords) > 0 {
		p.VerificationKeywords = file.VerificationKeywords
	}
	if len(file.VulgarityKeywords) > 0 {
		p.VulgarityKeywords = file.VulgarityKeywords
	}
	return p, nil
}

// KeywordPolicy matches when any keyword appears as a case-insensitive
// substring of the query. Implements domain.QueryPolicy.
type KeywordPolicy struct {
	keywords []string
}

func NewKeywordPolicy(keywords []string) *KeywordPolicy {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &KeywordPolicy{keywords: lowered}
}

func (p *KeywordPolicy) Matches(query string) bool {
	if query == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, kw := range p.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
