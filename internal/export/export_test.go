package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/storage"
	"github.com/orderscout/orderscout/internal/types"
)

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"today", "week", "month", "all"} {
		p, err := ParsePeriod(s)
		require.NoError(t, err)
		assert.Equal(t, Period(s), p)
	}

	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodAll, p)

	_, err = ParsePeriod("quarter")
	assert.Error(t, err)
}

func TestPeriodSince(t *testing.T) {
	now := time.Date(2026, 8, 20, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), PeriodToday.Since(now))
	assert.Equal(t, time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC), PeriodWeek.Since(now))
	assert.Equal(t, time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC), PeriodMonth.Since(now))
	assert.True(t, PeriodAll.Since(now).IsZero())
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Period: PeriodWeek}.Validate())
	assert.NoError(t, Filter{Period: PeriodAll, Category: types.CategoryBackend}.Validate())
	assert.Error(t, Filter{Period: PeriodAll, Category: "Gardening"}.Validate())
	assert.Error(t, Filter{Period: "quarter"}.Validate())
}

func TestWriteCSV(t *testing.T) {
	orders := []storage.Order{
		{
			ID:           1,
			CreatedAt:    time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
			ChatID:       7,
			AuthorName:   "Ivan",
			Category:     types.CategoryBackend,
			Relevance:    0.95,
			DetectedBy:   types.DetectedByRegex,
			Text:         "нужен python разработчик, \"срочно\"",
			TelegramLink: "https://t.me/c/123/1",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, orders))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"1", "2026-08-20T12:00:00Z", "7", "Ivan", "Backend",
		"0.95", "regex", "нужен python разработчик, \"срочно\"", "https://t.me/c/123/1",
	}, rows[1])
}

func TestWriteCSVEmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, csvHeader, rows[0])
}

func TestWriteSummary(t *testing.T) {
	sum := storage.StatsSummary{
		From:            "2026-08-13",
		To:              "2026-08-20",
		TotalMessages:   120,
		DetectedOrders:  14,
		RegexDetections: 9,
		LLMDetections:   5,
		LLMTokensUsed:   4200,
		LLMCost:         0.0123,
		ByCategory: map[types.Category]int64{
			types.CategoryBackend:  8,
			types.CategoryFrontend: 4,
			types.CategoryMobile:   2,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sum))
	out := buf.String()

	assert.Contains(t, out, "2026-08-13 .. 2026-08-20")
	assert.Contains(t, out, "Orders detected:   14")
	assert.Contains(t, out, "$0.0123")

	// Categories are listed busiest first.
	backend := strings.Index(out, "Backend")
	frontend := strings.Index(out, "Frontend")
	mobile := strings.Index(out, "Mobile")
	require.True(t, backend >= 0 && frontend >= 0 && mobile >= 0)
	assert.Less(t, backend, frontend)
	assert.Less(t, frontend, mobile)
}

func TestWriteHTML(t *testing.T) {
	orders := []storage.Order{
		{
			ID:        1,
			CreatedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
			Category:  types.CategoryBackend,
			Relevance: 0.95,
			Text:      "нужен python разработчик",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, orders))
	out := buf.String()

	assert.Contains(t, out, "нужен python разработчик")
	assert.Contains(t, out, "Backend")
}
