package reading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	repos "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	"github.com/yungbote/readsession-backend/internal/data/repos/testutil"
	types "github.com/yungbote/readsession-backend/internal/domain/reading"
)

func newDBFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	return newFixture(t, repos.NewSessionRepo(db, testutil.Logger(t)))
}

func TestPhotosynthesisScenarioOnDatabase(t *testing.T) {
	f := newDBFixture(t)
	runPhotosynthesisScenario(t, f)
	require.Equal(t, int32(1), f.scorer.calls.Load())
}

func TestConcurrentFinishOnDatabase(t *testing.T) {
	ctx := context.Background()
	f := newDBFixture(t)
	s := f.startDuring(t)
	f.record(t, s.ID, types.EventMarkKeyIdea, `{"blockId":"b","excerpt":"x"}`)
	_, err := f.uc.AdvancePhase(ctx, f.userID, s.ID, "POST")
	require.NoError(t, err)

	var wg sync.WaitGroup
	views := make([]*SessionView, 4)
	errs := make([]error, 4)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = f.uc.Finish(ctx, f.userID, s.ID)
		}(i)
	}
	wg.Wait()

	for i := range views {
		require.NoError(t, errs[i])
		require.NotNil(t, views[i].Outcome)
		require.True(t, views[0].Outcome.SameScores(views[i].Outcome))
	}
	require.Equal(t, int32(1), f.scorer.calls.Load())
}

func TestFinishSurvivesFirstCallerCancelling(t *testing.T) {
	f := newDBFixture(t)
	s := f.startDuring(t)
	f.record(t, s.ID, types.EventMarkKeyIdea, `{"blockId":"b","excerpt":"x"}`)
	_, err := f.uc.AdvancePhase(context.Background(), f.userID, s.ID, "POST")
	require.NoError(t, err)
	f.scorer.delay = 100 * time.Millisecond

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var (
		wg    sync.WaitGroup
		errA  error
		viewB *SessionView
		errB  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = f.uc.Finish(ctxA, f.userID, s.ID)
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		viewB, errB = f.uc.Finish(context.Background(), f.userID, s.ID)
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()
	wg.Wait()

	require.ErrorIs(t, errA, context.Canceled)
	require.NoError(t, errB)
	require.NotNil(t, viewB.Outcome)
	require.Equal(t, types.PhaseFinished, viewB.Session.Phase)

	v, err := f.uc.GetSession(context.Background(), f.userID, s.ID)
	require.NoError(t, err)
	require.Equal(t, types.PhaseFinished, v.Session.Phase)
	require.True(t, viewB.Outcome.SameScores(v.Outcome))
	require.Equal(t, int32(1), f.scorer.calls.Load())
}

func TestConcurrentEventsGetDistinctSequences(t *testing.T) {
	ctx := context.Background()
	f := newDBFixture(t)
	s := f.startDuring(t)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.RecordEvent(ctx, f.userID, s.ID, string(types.EventMarkKeyIdea), []byte(`{"blockId":"b","excerpt":"x"}`))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "append %d", i)
	}
	events, err := f.uc.ListEvents(ctx, f.userID, s.ID)
	require.NoError(t, err)
	require.Len(t, events, n)
	for i, e := range events {
		require.Equal(t, int64(i), e.Sequence)
	}
	v, err := f.uc.GetSession(ctx, f.userID, s.ID)
	require.NoError(t, err)
	require.Equal(t, int64(n), v.Session.EventCount)
}
