package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyntheticRecordFormulas(t *testing.T) {
	t.Parallel()

	record := SyntheticRecord("tech news", ListingChannels, 2, 3)
	require.Equal(t, "Tech News Channel 2-3", record.Name)
	require.Equal(t, "https://t.me/channel_tech news_2_3", record.Link)
	require.Equal(t, "52200", record.Subscribers)
	require.Equal(t, "Description for tech news channel 2-3", record.Description)
	require.Equal(t, "tech news", record.Category)
	require.Equal(t, ListingChannels, record.ListingType)
}

func TestSyntheticRecordDeterministic(t *testing.T) {
	t.Parallel()

	a := SyntheticRecord("crypto", ListingChats, 1, 1)
	b := SyntheticRecord("crypto", ListingChats, 1, 1)
	require.Equal(t, a, b)
}

func TestSyntheticRecordSubscriberProgression(t *testing.T) {
	t.Parallel()

	require.Equal(t, "50000", SyntheticRecord("x", ListingChannels, 0, 1).Subscribers)
	require.Equal(t, "51000", SyntheticRecord("x", ListingChannels, 1, 1).Subscribers)
	require.Equal(t, "51100", SyntheticRecord("x", ListingChannels, 1, 2).Subscribers)
}

func TestSyntheticPage(t *testing.T) {
	t.Parallel()

	records := SyntheticPage("crypto", ListingChats, 4)
	require.Len(t, records, SyntheticPageSize)
	for i, record := range records {
		require.Equal(t, SyntheticRecord("crypto", ListingChats, 4, i+1), record)
		require.Equal(t, ListingChats, record.ListingType)
	}
	require.Equal(t, "Crypto Chat 4-1", records[0].Name)
}
