package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/store"
)

func seed(t *testing.T) (*store.MemoryStore, []*domain.Job) {
	t.Helper()
	mem := store.NewMemory()
	base := time.Unix(1_700_000_000, 0)
	specs := []struct {
		id, status, result string
	}{
		{"old", domain.JobStatusCompleted, `{"company_name":"Old Co","scores":{"overall":40}}`},
		{"failed", domain.JobStatusFailed, ``},
		{"new", domain.JobStatusCompleted, `{"firma_adi":"Yeni AŞ","genel_skor":80}`},
		{"running", domain.JobStatusProcessing, ``},
	}
	var jobs []*domain.Job
	for i, sp := range specs {
		j := &domain.Job{
			ID:        sp.id,
			Status:    sp.status,
			Company:   domain.CompanyProfile{CompanyName: sp.id, Website: "https://" + sp.id + ".example"},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if sp.result != "" {
			j.Result = json.RawMessage(sp.result)
		}
		require.NoError(t, mem.CreateJob(context.Background(), j))
		jobs = append(jobs, j)
	}
	return mem, jobs
}

func newStore(t *testing.T, src JobSource) *Store {
	t.Helper()
	s, err := New(src, 8, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestListCompletedNewestFirst(t *testing.T) {
	mem, _ := seed(t)
	s := newStore(t, mem)

	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestActivateRetainsPrevious(t *testing.T) {
	mem, jobs := seed(t)
	s := newStore(t, mem)

	_, ok := s.Active()
	assert.False(t, ok)

	active, prev, err := s.Activate(jobs[0])
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, 40.0, active.Result.Scores.Overall.Score)
	assert.Contains(t, active.Briefing, "Old Co")

	active, prev, err = s.Activate(jobs[2])
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "new", active.JobID)
	assert.Equal(t, "old", prev.JobID)
	assert.Equal(t, "Yeni AŞ", active.Result.Company.Name)

	// Re-activating the active report keeps the retained one.
	_, prev, err = s.Activate(jobs[2])
	require.NoError(t, err)
	assert.Equal(t, "old", prev.JobID)
}

func TestSwapBackDoesNotRenormalize(t *testing.T) {
	mem, jobs := seed(t)
	s := newStore(t, mem)

	_, _, err := s.SwapBack()
	assert.ErrorIs(t, err, ErrNoPrevious)

	_, _, _ = s.Activate(jobs[0])
	_, _, _ = s.Activate(jobs[2])
	loads := s.loads.Load()

	active, prev, err := s.SwapBack()
	require.NoError(t, err)
	assert.Equal(t, "old", active.JobID)
	assert.Equal(t, "new", prev.JobID)

	active, _, err = s.SwapBack()
	require.NoError(t, err)
	assert.Equal(t, "new", active.JobID)
	assert.Equal(t, loads, s.loads.Load())

	p, ok := s.Previous()
	require.True(t, ok)
	assert.Equal(t, "old", p.JobID)
}

func TestViewIsCachedAndDeduplicated(t *testing.T) {
	mem, jobs := seed(t)
	s := newStore(t, mem)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.View(jobs[0])
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), s.loads.Load())

	updated := *jobs[0]
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Minute)
	updated.Result = json.RawMessage(`{"scores":{"overall":55}}`)
	assert.Equal(t, 55.0, s.View(&updated).Result.Scores.Overall.Score)
	assert.Equal(t, int64(2), s.loads.Load())
}

func TestActivateID(t *testing.T) {
	mem, _ := seed(t)
	s := newStore(t, mem)

	active, _, err := s.ActivateID(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "new", active.JobID)

	_, _, err = s.ActivateID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, id := range []string{"running", "failed"} {
		_, _, err = s.ActivateID(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotCompleted, id)
	}
	current, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "new", current.JobID, "a rejected activation leaves the active report alone")

	_, _, err = s.Activate(nil)
	assert.ErrorIs(t, err, ErrNilJob)
}
