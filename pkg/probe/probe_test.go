package probe

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndAnalyze(t *testing.T) {
	probes := []Probe{
		{Name: "assets", Check: func(ctx context.Context) error { return nil }, Critical: true},
		{Name: "optional", Check: func(ctx context.Context) error { return fmt.Errorf("missing") }, Critical: false},
	}

	results := Run(context.Background(), probes)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Error)
	assert.Error(t, results[1].Error)

	// Non-critical failure does not block startup.
	assert.NoError(t, AnalyzeResults(results))
}

func TestCriticalFailureBlocksStartup(t *testing.T) {
	probes := []Probe{
		{Name: "question bank", Check: func(ctx context.Context) error { return fmt.Errorf("not found") }, Critical: true},
	}

	err := AnalyzeResults(Run(context.Background(), probes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question bank")
}

func TestCheckReceivesDeadline(t *testing.T) {
	var hadDeadline bool
	Run(context.Background(), []Probe{{
		Name: "deadline",
		Check: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		},
	}})
	assert.True(t, hadDeadline)
}
