package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartslot/slotplanner/internal/config"
)

func TestNewRejectsMalformedClocks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedule.DayStart = "7h30"
	_, err := New(&cfg, nil)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Schedule.DayEnd = "25:00"
	_, err = New(&cfg, nil)
	assert.Error(t, err)
}

func TestNewRejectsInvertedWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Schedule.DayStart = "16:30"
	cfg.Schedule.DayEnd = "07:30"
	_, err := New(&cfg, nil)
	assert.Error(t, err)
}

func TestNewWithDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	p, err := New(&cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.searcher)
	assert.NotNil(t, p.geocoder)
	assert.NotNil(t, p.travels)
}
