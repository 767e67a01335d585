package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	fails bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.fails {
		return errors.New("job failed")
	}
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))
	// Re-registering replaces the entry
	require.NoError(t, s.AddJob("@every 1s", job))
	assert.Equal(t, []string{"tick"}, s.Jobs())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "bad"}))
	assert.Len(t, s.Jobs(), 1)
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	failing := &countingJob{name: "fail", fails: true}
	require.NoError(t, s.AddJob("@every 1s", job))
	require.NoError(t, s.AddJob("@every 1s", failing))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0 && failing.runs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Error(t, s.RunNow(&countingJob{name: "fail", fails: true}))
}
