package edgar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoClientAppleFixtures(t *testing.T) {
	t.Parallel()
	client := NewDemoClient()

	filings, err := client.SearchFilings(context.Background(), "AAPL", "10-K", 10)
	require.NoError(t, err)
	require.Len(t, filings, 5)

	for _, f := range filings {
		assert.Equal(t, "AAPL", f.Company)
		assert.NotEmpty(t, f.URL)
		assert.NotEmpty(t, f.Content)
		assert.NotEmpty(t, f.Date)
		assert.Equal(t, "0000320193", f.CIK)
	}
	assert.Contains(t, filings[0].Content, "climate")
}

func TestDemoClientGenericTicker(t *testing.T) {
	t.Parallel()
	client := NewDemoClient()

	filings, err := client.SearchFilings(context.Background(), "orcl", "10-K", 10)
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, "ORCL", filings[0].Company)
	assert.Equal(t, "10-K", filings[0].FilingType)
	assert.Contains(t, filings[0].Content, "ORCL")
}

func TestDemoClientAppliesLimit(t *testing.T) {
	t.Parallel()
	client := NewDemoClient()

	filings, err := client.SearchFilings(context.Background(), "AAPL", "10-K", 2)
	require.NoError(t, err)
	assert.Len(t, filings, 2)
}

func TestDemoClientEmptyTicker(t *testing.T) {
	t.Parallel()
	client := NewDemoClient()

	_, err := client.SearchFilings(context.Background(), "", "10-K", 10)
	require.Error(t, err)
}
