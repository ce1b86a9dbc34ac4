package classify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderscout/orderscout/internal/types"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(zerolog.Nop())
	require.NoError(t, err)
	return a
}

func TestAnalyzeDetectsPythonOrder(t *testing.T) {
	a := newAnalyzer(t)

	det := a.Analyze("Нужен Python разработчик для проекта. Опыт от 3 лет.")
	require.NotNil(t, det)
	assert.Equal(t, types.CategoryBackend, det.Category)
	assert.Equal(t, types.DetectedByRegex, det.Method)
	assert.GreaterOrEqual(t, det.Confidence, 0.80)
	assert.Equal(t, "python_dev", det.Pattern)
	assert.NotEmpty(t, det.Matched)
}

func TestAnalyzeIgnoresCasualChat(t *testing.T) {
	a := newAnalyzer(t)
	assert.Nil(t, a.Analyze("Привет! Как дела? Давай встретимся на кофе."))
}

func TestAnalyzeShortTextReturnsNil(t *testing.T) {
	a := newAnalyzer(t)
	for _, text := range []string{"", "h", "hi", "  hi  "} {
		assert.Nil(t, a.Analyze(text), "text %q", text)
	}
}

func TestAnalyzeAcceptsConfidenceAtFloor(t *testing.T) {
	a := newAnalyzer(t)

	// Matches only the generic developer pattern, which sits exactly at
	// the acceptance floor.
	det := a.Analyze("нужен разработчик")
	require.NotNil(t, det)
	assert.Equal(t, "general_developer", det.Pattern)
	assert.Equal(t, AcceptanceFloor, det.Confidence)
}

func TestAnalyzeHighestConfidenceWins(t *testing.T) {
	a := newAnalyzer(t)

	// Matches both the generic 0.80 pattern and the 0.95 python one.
	det := a.Analyze("нужен разработчик, точнее нужен python разработчик")
	require.NotNil(t, det)
	assert.Equal(t, "python_dev", det.Pattern)
	assert.Equal(t, 0.95, det.Confidence)
}

func TestAnalyzeExclusionVetoes(t *testing.T) {
	a := newAnalyzer(t)

	// The commerce veto wins even though the order pattern also matches.
	assert.Nil(t, a.Analyze("Продам ноутбук. Кстати, нужен разработчик."))
	assert.Nil(t, a.Analyze("спам spam реклама"))
}

func TestAnalyzeVetoWordInsideLargerWordDoesNotFire(t *testing.T) {
	a := newAnalyzer(t)

	// "продажи" contains a veto stem but is not the veto word; the
	// legitimate order must survive.
	det := a.Analyze("Для сервиса продажи билетов нужен Python разработчик")
	require.NotNil(t, det)
	assert.Equal(t, types.CategoryBackend, det.Category)
}

func TestAnalyzeCaseInsensitive(t *testing.T) {
	a := newAnalyzer(t)

	det := a.Analyze("НУЖЕН PYTHON РАЗРАБОТЧИК")
	require.NotNil(t, det)
	assert.Equal(t, types.CategoryBackend, det.Category)
}

func TestAnalyzeCategoryCoverage(t *testing.T) {
	a := newAnalyzer(t)

	cases := map[string]types.Category{
		"требуется react разработчик на проект":    types.CategoryFrontend,
		"нужен flutter разработчик для приложения": types.CategoryMobile,
		"требуется prompt engineer в команду":      types.CategoryAIML,
		"разработка на bubble для стартапа":        types.CategoryLowCode,
		"ищу разработчика на shopify для магазина": types.CategoryOther,
		"ищем backend-разработчик в команду":       types.CategoryBackend,
	}
	for text, want := range cases {
		det := a.Analyze(text)
		require.NotNil(t, det, "text %q", text)
		assert.Equal(t, want, det.Category, "text %q", text)
	}
}
