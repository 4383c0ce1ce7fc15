package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/collections-go/internal/testutil"
)

func TestApplyConfig(t *testing.T) {
	app := testutil.SetupTestApp(t, nil)
	assert.Equal(t, 2, app.Engine().Tuning().BatchSize)

	cfg := testutil.TestConfig()
	cfg.Jobs.BatchSize = 500
	cfg.Jobs.BatchDelay = 20 * time.Millisecond
	cfg.Throttle.PerRow = time.Millisecond
	app.ApplyConfig(cfg)

	tuning := app.Engine().Tuning()
	assert.Equal(t, 500, tuning.BatchSize)
	assert.Equal(t, 20*time.Millisecond, tuning.BatchDelay)
	assert.Equal(t, time.Millisecond, app.Store().Throttle().PerRow())
	assert.Same(t, cfg, app.Config())
}

func TestBuildRegistersCollectors(t *testing.T) {
	app := testutil.SetupTestApp(t, nil)

	families, err := app.Metrics().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["go_sql_max_open_connections"])
}
