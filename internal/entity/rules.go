package entity

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule maps a set of company aliases to a canonical ticker. Rules are
// evaluated in table order; the first rule with a matching alias wins.
type Rule struct {
	Ticker  string   `yaml:"ticker"`
	Aliases []string `yaml:"aliases"`
}

// DefaultRules returns the built-in alias table. Order is part of the
// contract: earlier rules shadow later ones when a question mentions
// several companies.
func DefaultRules() []Rule {
	return []Rule{
		{Ticker: "AAPL", Aliases: []string{"aapl", "apple"}},
		{Ticker: "MSFT", Aliases: []string{"msft", "microsoft"}},
		{Ticker: "GOOGL", Aliases: []string{"googl", "goog", "google", "alphabet"}},
		{Ticker: "AMZN", Aliases: []string{"amzn", "amazon"}},
		{Ticker: "TSLA", Aliases: []string{"tsla", "tesla"}},
		{Ticker: "META", Aliases: []string{"meta", "facebook"}},
		{Ticker: "NVDA", Aliases: []string{"nvda", "nvidia"}},
		{Ticker: "NFLX", Aliases: []string{"nflx", "netflix"}},
		{Ticker: "CRM", Aliases: []string{"crm", "salesforce"}},
		{Ticker: "ORCL", Aliases: []string{"orcl", "oracle"}},
	}
}

// LoadRules reads an alias rule table from a YAML file. The file has a
// top-level "rules" key listing {ticker, aliases} entries in match order.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: read rules %s", path)
	}

	var wrapper struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "entity: parse rules %s", path)
	}

	if len(wrapper.Rules) == 0 {
		return nil, eris.Errorf("entity: no rules in %s", path)
	}
	for i, r := range wrapper.Rules {
		if r.Ticker == "" || len(r.Aliases) == 0 {
			return nil, eris.Errorf("entity: rule %d is missing a ticker or aliases", i)
		}
	}

	return wrapper.Rules, nil
}
