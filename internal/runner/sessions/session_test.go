package sessions

import (
	"testing"
	"time"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StaleHeartbeat(t *testing.T) {
	s := New(&models.RunnerJob{JobID: "j1", UserID: 1}, Deps{})

	// не running — staleness не применяется
	assert.False(t, s.Stale(time.Now(), time.Minute))

	s.setStatus(models.WorkerRunning)
	s.beat()
	assert.False(t, s.Stale(time.Now(), time.Minute))

	old := time.Now().Add(-2 * time.Minute)
	s.mu.Lock()
	s.lastHeartbeat = &old
	s.mu.Unlock()
	assert.True(t, s.Stale(time.Now(), time.Minute))

	// останавливающийся не считается зависшим даже с древним heartbeat
	s.setStatus(models.WorkerStopping)
	assert.False(t, s.Stale(time.Now(), time.Minute))
}

func TestSession_MarkCrashedCancelsContext(t *testing.T) {
	s := New(&models.RunnerJob{JobID: "j1", UserID: 1}, Deps{})
	s.setStatus(models.WorkerRunning)

	s.MarkCrashed()
	assert.Equal(t, models.WorkerCrashed, s.Status())

	select {
	case <-s.Ctx.Done():
	default:
		require.Fail(t, "context not canceled")
	}
}
