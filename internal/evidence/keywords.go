package evidence

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultKeywords returns the built-in risk/ESG/regulatory vocabulary that
// drives snippet scoring.
func DefaultKeywords() []string {
	return []string{
		"risk", "risks", "challenge", "challenges", "concern", "concerns",
		"regulatory", "regulation", "compliance",
		"environmental", "social", "governance", "esg", "sustainability",
		"climate", "carbon", "emissions",
		"supply", "chain", "labor",
		"privacy", "data", "security",
		"competition", "antitrust", "litigation", "lawsuit",
	}
}

// LoadKeywords reads a scoring vocabulary from a YAML file with a top-level
// "keywords" key. Scoring behavior is tunable without code changes.
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: read keywords %s", path)
	}

	var wrapper struct {
		Keywords []string `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "evidence: parse keywords %s", path)
	}

	if len(wrapper.Keywords) == 0 {
		return nil, eris.Errorf("evidence: no keywords in %s", path)
	}

	return wrapper.Keywords, nil
}
