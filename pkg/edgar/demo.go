package edgar

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// NewDemoClient returns a Client backed by a fixture dataset so demos and
// tests run keyless and offline.
func NewDemoClient() Client {
	return demoClient{}
}

type demoClient struct{}

func (demoClient) SearchFilings(_ context.Context, ticker, filingType string, limit int) ([]Filing, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, eris.New("edgar: ticker must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	filings := demoFilings(ticker, filingType)
	if len(filings) > limit {
		filings = filings[:limit]
	}
	return filings, nil
}

func demoFilings(ticker, filingType string) []Filing {
	switch ticker {
	case "AAPL":
		return []Filing{
			{
				Company:    "AAPL",
				FilingType: "10-K",
				URL:        "https://www.sec.gov/Archives/edgar/data/320193/000032019323000106/aapl-20230930.htm",
				Content: "Apple Inc. faces several ESG and climate-related risks that could materially affect our business. " +
					"Climate change risks include both physical and transition exposure. Physical risks include disruption to " +
					"our supply chain from extreme weather events, particularly in Asia where many of our suppliers operate. " +
					"Flooding in Thailand and typhoons in China have previously caused production delays. We are committed to " +
					"achieving carbon neutrality across our entire supply chain by 2030, including reducing emissions by 75% " +
					"and removing remaining emissions through carbon offsets and renewable energy investments.",
				Date:      "2023-11-03",
				CIK:       "0000320193",
				Accession: "0000320193-23-000106",
			},
			{
				Company:    "AAPL",
				FilingType: "10-Q",
				URL:        "https://www.sec.gov/Archives/edgar/data/320193/000032019324000007/aapl-20231230.htm",
				Content: "Environmental compliance: increasing environmental regulations globally may require significant capital " +
					"expenditures to modify our products and manufacturing processes. The EU's circular economy requirements and " +
					"right-to-repair legislation could impact our product design and business model. We have established supplier " +
					"clean energy commitments covering over 13.7 gigawatts of renewable energy across 21 countries.",
				Date:      "2024-02-01",
				CIK:       "0000320193",
				Accession: "0000320193-24-000007",
			},
			{
				Company:    "AAPL",
				FilingType: "8-K",
				URL:        "https://www.sec.gov/Archives/edgar/data/320193/000032019324000015/aapl-20240201.htm",
				Content: "Supply chain ESG: we rely on suppliers who may not meet evolving ESG standards. Issues with conflict " +
					"minerals, labor practices, or environmental violations in our supply chain could result in reputational " +
					"damage, regulatory penalties, and operational disruptions. Our Supplier Code of Conduct requires all " +
					"suppliers to meet our standards for labor, human rights, health and safety, and environmental " +
					"responsibility. We conducted over 1,100 supplier assessments in fiscal 2023.",
				Date:      "2024-02-01",
				CIK:       "0000320193",
				Accession: "0000320193-24-000015",
			},
			{
				Company:    "AAPL",
				FilingType: "DEF 14A",
				URL:        "https://www.sec.gov/Archives/edgar/data/320193/000119312524000123/d12345d14a.htm",
				Content: "Climate-related disclosure requirements continue to evolve. The SEC's proposed climate disclosure rules " +
					"would require us to disclose greenhouse gas emissions, climate-related risks and targets, and governance " +
					"around climate issues. We believe climate change presents both risks and opportunities. Our products enable " +
					"customers to reduce their environmental impact, and we continue to invest in renewable energy and circular " +
					"design principles.",
				Date:      "2024-01-15",
				CIK:       "0000320193",
				Accession: "0000320193-24-000001",
			},
			{
				Company:    "AAPL",
				FilingType: "10-Q",
				URL:        "https://www.sec.gov/Archives/edgar/data/320193/000032019324000032/aapl-20240331.htm",
				Content: "Transition risks related to climate change include potential carbon pricing mechanisms, changes in " +
					"customer preferences toward more sustainable products, and increased costs of raw materials due to " +
					"environmental regulations. We have committed $4.7 billion toward green bonds to fund environmental projects " +
					"including renewable energy, energy efficiency, and sustainable product design initiatives.",
				Date:      "2024-05-02",
				CIK:       "0000320193",
				Accession: "0000320193-24-000032",
			},
		}
	case "TSLA":
		return []Filing{
			{
				Company:    "TSLA",
				FilingType: "10-K",
				URL:        "https://www.sec.gov/Archives/edgar/data/1318605/000131860524000024/tsla-20231231.htm",
				Content: "Tesla faces unique ESG risks as an electric vehicle manufacturer. Battery supply chain: critical " +
					"mineral sourcing for batteries poses significant ESG risks including environmental damage from mining, " +
					"human rights concerns in cobalt sourcing, and geopolitical risks in lithium supply. Manufacturing " +
					"environmental impact: despite producing zero-emission vehicles, our manufacturing processes have " +
					"substantial environmental impacts including water usage, chemical handling, and energy consumption.",
				Date:      "2024-01-29",
				CIK:       "0001318605",
				Accession: "0001318605-24-000024",
			},
		}
	default:
		return []Filing{
			{
				Company:    ticker,
				FilingType: filingType,
				URL:        fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/example/%s-10k.htm", strings.ToLower(ticker)),
				Content: fmt.Sprintf("%s faces various ESG risks including climate change impacts, supply chain "+
					"sustainability, regulatory compliance, and stakeholder expectations around environmental and social "+
					"responsibility.", ticker),
				Date:      "2024-03-15",
				CIK:       "0000000000",
				Accession: "0000000000-24-000001",
			},
		}
	}
}
