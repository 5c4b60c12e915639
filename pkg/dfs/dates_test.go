package dfs

import (
	"testing"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/stretchr/testify/assert"
)

func day(offset int) time.Time {
	return types.Midnight(time.Now()).AddDate(0, 0, offset)
}

func TestResolveDate(t *testing.T) {
	today := day(0)

	t.Run("AllPastPicksMostRecent", func(t *testing.T) {
		got := ResolveDate([]time.Time{day(-2), day(-1)}, today)
		assert.Equal(t, day(-1), got)
	})

	t.Run("PrefersEarliestUpcoming", func(t *testing.T) {
		got := ResolveDate([]time.Time{day(-1), day(3), day(7)}, today)
		assert.Equal(t, day(3), got)
	})

	t.Run("TodayCountsAsUpcoming", func(t *testing.T) {
		got := ResolveDate([]time.Time{day(-1), day(0), day(2)}, today)
		assert.Equal(t, day(0), got)
	})

	t.Run("Empty", func(t *testing.T) {
		got := ResolveDate(nil, today)
		assert.True(t, got.IsZero())
	})
}

func TestDeliveryDates(t *testing.T) {
	records := []types.RawRecord{
		{types.ColDeliveryDate: "2024-03-01"},
		{types.ColDeliveryDate: "2024-03-01"},
		{types.ColDeliveryDate: "2024-03-02"},
		{types.ColDeliveryDate: nil},
		{"Other": "x"},
	}
	dates := deliveryDates(records)
	assert.Len(t, dates, 2, "duplicates and unparseable rows are dropped")
}

func TestSortByStart(t *testing.T) {
	records := []types.RawRecord{
		{types.ColFrom: "17:30"},
		{types.ColFrom: "05:00"},
		{types.ColFrom: "17:00"},
	}
	sortByStart(records)
	first, _ := records[0].String(types.ColFrom)
	last, _ := records[2].String(types.ColFrom)
	assert.Equal(t, "05:00", first)
	assert.Equal(t, "17:30", last)
}
