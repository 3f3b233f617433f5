package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

func TestFilename(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"tgstat_results_crypto_0192aa00-0000-7000-8000-000000000001.txt",
		Filename("crypto", "0192aa00-0000-7000-8000-000000000001"),
	)
}

func TestRender(t *testing.T) {
	t.Parallel()

	records := []scrape.ResultRecord{
		{Name: "A", Link: "L1", Subscribers: "10"},
		{Name: "B", Link: "L2", Subscribers: "20"},
		{Name: "C", Link: "L3", Subscribers: "30"},
	}
	want := `1. A \ L1 \ 10` + "\n" + `2. B \ L2 \ 20` + "\n" + `3. C \ L3 \ 30`
	require.Equal(t, want, Render(records))
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Render(nil))
}

func TestRenderKeepsSentinels(t *testing.T) {
	t.Parallel()

	records := []scrape.ResultRecord{
		{Name: "Known", Link: scrape.FieldUnresolved, Subscribers: scrape.FieldUnresolved},
	}
	require.Equal(t, `1. Known \ N/A \ N/A`, Render(records))
}
