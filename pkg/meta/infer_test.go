package meta

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/trellis/pkg/table"
)

func newTestEngine(t *testing.T, opts ...InferenceOption) *InferenceEngine {
	t.Helper()
	return NewInferenceEngine(zaptest.NewLogger(t), opts...)
}

func column(name string, values ...interface{}) table.Column {
	return table.Column{Name: name, Values: values}
}

func TestInferNumeric(t *testing.T) {
	engine := newTestEngine(t)

	v := engine.Infer(column("price", 1.5, 2.0, nil, 3.25))
	require.Equal(t, KindNumber, v.Kind())
	assert.Equal(t, "price", v.Name())
	assert.True(t, v.Filterable())
	assert.True(t, v.Sortable())
}

func TestInferBoolBecomesFactor(t *testing.T) {
	engine := newTestEngine(t)

	v := engine.Infer(column("active", true, false, true))
	require.Equal(t, KindFactor, v.Kind())
	f := v.(*Factor)
	assert.Equal(t, []string{"false", "true"}, f.Levels)
}

func TestInferBoolLevelsCoverUnobservedValue(t *testing.T) {
	engine := newTestEngine(t)

	// A column where only one boolean value occurs still carries both
	// levels.
	v := engine.Infer(column("active", true, true, true))
	require.Equal(t, KindFactor, v.Kind())
	assert.Equal(t, []string{"false", "true"}, v.(*Factor).Levels)
}

func TestInferFactorThreshold(t *testing.T) {
	engine := newTestEngine(t, WithFactorThreshold(3))

	t.Run("at threshold", func(t *testing.T) {
		v := engine.Infer(column("grade", "a", "b", "c", "a", "b"))
		assert.Equal(t, KindFactor, v.Kind())
	})

	t.Run("above threshold", func(t *testing.T) {
		v := engine.Infer(column("note", "a", "b", "c", "d"))
		assert.Equal(t, KindText, v.Kind())
	})
}

func TestInferFactorThresholdBoundary(t *testing.T) {
	// Exactly DefaultFactorThreshold unique values is still a Factor;
	// one more tips the column into free text.
	engine := newTestEngine(t)

	atLimit := make([]interface{}, DefaultFactorThreshold)
	for i := range atLimit {
		atLimit[i] = fmt.Sprintf("level-%03d", i)
	}
	v := engine.Infer(column("at", atLimit...))
	assert.Equal(t, KindFactor, v.Kind())

	overLimit := append(append([]interface{}{}, atLimit...), "level-overflow")
	v = engine.Infer(column("over", overLimit...))
	assert.Equal(t, KindText, v.Kind())
}

func TestInferHref(t *testing.T) {
	engine := newTestEngine(t)

	// Keep values unique enough to clear the factor check.
	values := make([]interface{}, 60)
	for i := range values {
		values[i] = fmt.Sprintf("https://example.com/report/%d", i)
	}
	v := engine.Infer(column("link", values...))
	assert.Equal(t, KindHref, v.Kind())
}

func TestInferTemporalStrings(t *testing.T) {
	engine := newTestEngine(t)

	// Enough unique values to clear the factor check first.
	dates := make([]interface{}, 60)
	stamps := make([]interface{}, 60)
	for i := range dates {
		dates[i] = fmt.Sprintf("%04d-01-15", 1960+i)
		stamps[i] = fmt.Sprintf("%04d-01-15 12:%02d:00", 1960+i, i%60)
	}

	v := engine.Infer(column("day", dates...))
	assert.Equal(t, KindDate, v.Kind())

	v = engine.Infer(column("stamp", stamps...))
	assert.Equal(t, KindTime, v.Kind())
}

func TestInferTimeValues(t *testing.T) {
	engine := newTestEngine(t)

	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	v := engine.Infer(column("day", midnight, midnight.AddDate(0, 0, 1)))
	assert.Equal(t, KindDate, v.Kind(), "clock-less timestamps infer as dates")

	v = engine.Infer(column("at", midnight, midnight.Add(90*time.Minute)))
	assert.Equal(t, KindTime, v.Kind(), "any clock component promotes to time")
}

func TestInferGraph(t *testing.T) {
	engine := newTestEngine(t)

	v := engine.Infer(column("trend",
		[]float64{1, 2, 3},
		[]float64{4, 5, 6},
		nil))
	require.Equal(t, KindGraph, v.Kind())
	assert.False(t, v.Filterable(), "sparkline series cannot be filtered")
}

func TestInferMixedFallsBackToText(t *testing.T) {
	engine := newTestEngine(t)

	v := engine.Infer(column("mixed", "a", 1.0, true))
	require.Equal(t, KindText, v.Kind())
	assert.False(t, v.Filterable())
	assert.False(t, v.Sortable())
}

func TestInferAllNull(t *testing.T) {
	engine := newTestEngine(t)

	v := engine.Infer(column("empty", nil, nil, nil))
	require.Equal(t, KindNumber, v.Kind())
	w := v.Wire()
	assert.True(t, w.NoData)
}
