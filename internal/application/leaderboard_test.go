package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/infrastructure/cache"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
	"github.com/ahrav/go-hydra/internal/testutils"
)

// countingResults counts ListResults calls to observe cache hits.
type countingResults struct {
	ports.ResultStore
	lists atomic.Int32
}

func (c *countingResults) ListResults(ctx context.Context, contestID string) ([]domain.ContestResult, error) {
	c.lists.Add(1)
	return c.ResultStore.ListResults(ctx, contestID)
}

func newTestLeaderboard(t *testing.T, results ports.ResultStore, opts ...LeaderboardOption) *LeaderboardService {
	t.Helper()
	lru, err := cache.NewLRU[[]domain.ScoredModel](16, 0)
	require.NoError(t, err)
	svc, err := NewLeaderboardService(results, newTestScorer(t, nil), lru,
		ScoringConfig{DefaultScheme: string(domain.SchemeWeightedAvg), UserWeight: 50}, nil, opts...)
	require.NoError(t, err, "leaderboard should build")
	return svc
}

func recordAll(t *testing.T, svc *LeaderboardService, results []domain.ContestResult) {
	t.Helper()
	for i := range results {
		r := results[i]
		r.ContestID = "contest-1"
		require.NoError(t, svc.RecordScore(context.Background(), &r), "result %d should record", i)
	}
}

func TestLeaderboard_StandingsAreCachedPerRevision(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	results := &countingResults{ResultStore: db.Results()}
	svc := newTestLeaderboard(t, results)

	// Given a recorded contest
	recordAll(t, svc, twoModelContest())

	// When standings are read twice
	first, err := svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)
	second, err := svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)

	// Then the second read is served from cache
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), results.lists.Load())
	require.Len(t, first, 2)
	assert.Equal(t, "beta", first[0].ModelID)

	// When a new score lands
	recordAll(t, svc, []domain.ContestResult{result("alpha", "r3", domain.Float(10), domain.Float(10))})
	third, err := svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)

	// Then the revision change forces a recompute
	assert.Equal(t, int32(2), results.lists.Load())
	require.Len(t, third, 2)
	assert.Equal(t, "alpha", third[1].ModelID)
	assert.InDelta(t, 8.0, third[1].FinalScore, 1e-9)
}

func TestLeaderboard_KeysBySchemeAndWeight(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	results := &countingResults{ResultStore: db.Results()}
	svc := newTestLeaderboard(t, results)
	recordAll(t, svc, twoModelContest())

	_, err := svc.Standings(ctx, "contest-1", domain.SchemeElo, nil)
	require.NoError(t, err)
	_, err = svc.Standings(ctx, "contest-1", domain.SchemeWeightedAvg, domain.Int(80))
	require.NoError(t, err)
	_, err = svc.Standings(ctx, "contest-1", domain.SchemeWeightedAvg, domain.Int(100))
	require.NoError(t, err)
	// 250 clamps to 100 and shares its entry.
	_, err = svc.Standings(ctx, "contest-1", domain.SchemeWeightedAvg, domain.Int(250))
	require.NoError(t, err)
	// An empty scheme and nil weight take the defaults.
	_, err = svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)
	_, err = svc.Standings(ctx, "contest-1", domain.SchemeWeightedAvg, domain.Int(50))
	require.NoError(t, err)

	assert.Equal(t, int32(4), results.lists.Load())
}

func TestLeaderboard_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	svc := newTestLeaderboard(t, db.Results())
	recordAll(t, svc, twoModelContest())

	first, err := svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)
	first[0].ModelID = "tampered"

	second, err := svc.Standings(ctx, "contest-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "beta", second[0].ModelID)
}

func TestLeaderboard_EmptyContest(t *testing.T) {
	db := newTestStore(t)
	svc := newTestLeaderboard(t, db.Results())

	ranked, err := svc.Standings(context.Background(), "nothing-here", "", nil)
	require.NoError(t, err)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

func TestLeaderboard_ConcurrentStandings(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	svc := newTestLeaderboard(t, db.Results())
	recordAll(t, svc, twoModelContest())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ranked, err := svc.Standings(ctx, "contest-1", domain.SchemeTournament, nil)
			assert.NoError(t, err)
			assert.Len(t, ranked, 2)
		}()
	}
	wg.Wait()
}

func TestLeaderboard_RecordScoreValidation(t *testing.T) {
	db := newTestStore(t)
	svc := newTestLeaderboard(t, db.Results())

	tests := []struct {
		name string
		r    domain.ContestResult
	}{
		{name: "missing contest", r: result("alpha", "r1", domain.Float(5), nil)},
		{name: "missing model", r: domain.ContestResult{ContestID: "c", RoundID: "r1"}},
		{name: "score out of range", r: domain.ContestResult{ContestID: "c", ModelID: "alpha", RoundID: "r1", ArbiterScore: domain.Float(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RecordScore(context.Background(), &tt.r)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestLeaderboard_RecordScoreTriggersDiscrepancyCheck(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	require.NoError(t, db.Users().GrantRole(ctx, "sup-1", domain.SupervisorRole))

	llm := testutils.NewMockLLMClient(testEvolutionerModel, testutils.MockResponse{Response: "Rubric ambiguity."})
	discrepancy, err := NewDiscrepancyService(db, llm, []ports.Notifier{db.Notifications()}, DiscrepancyConfig{}, nil)
	require.NoError(t, err)
	svc := newTestLeaderboard(t, db.Results(), WithDiscrepancyTrigger(discrepancy))

	// Given one agreeing, one half-scored and one disagreeing result
	agree := domain.ContestResult{ContestID: "contest-1", ModelID: "alpha", RoundID: "r1", UserScore: domain.Float(7), ArbiterScore: domain.Float(7.5)}
	half := domain.ContestResult{ContestID: "contest-1", ModelID: "beta", RoundID: "r1", ArbiterScore: domain.Float(2)}
	clash := domain.ContestResult{ContestID: "contest-1", ModelID: "gamma", RoundID: "r1", UserScore: domain.Float(9), ArbiterScore: domain.Float(3)}

	// When they are recorded and background checks drain
	for _, r := range []*domain.ContestResult{&agree, &half, &clash} {
		require.NoError(t, svc.RecordScore(ctx, r))
	}
	svc.Wait()

	// Then only the disagreement is escalated
	assert.Equal(t, 1, llm.Calls())
	rec, err := db.Evolutions().EvolutionByResult(ctx, clash.ID)
	require.NoError(t, err, "disagreement should be escalated")
	assert.Equal(t, "HYDRA-EVO-001", rec.Code)
	assert.Equal(t, "gamma", rec.ModelID)

	_, err = db.Evolutions().EvolutionByResult(ctx, agree.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inbox, err := db.Notifications().ListNotifications(ctx, "sup-1")
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestNewLeaderboardService_Validation(t *testing.T) {
	db := newTestStore(t)
	lru, err := cache.NewLRU[[]domain.ScoredModel](4, 0)
	require.NoError(t, err)
	scorer := newTestScorer(t, nil)

	_, err = NewLeaderboardService(nil, scorer, lru, ScoringConfig{}, nil)
	assert.Error(t, err)
	_, err = NewLeaderboardService(db.Results(), nil, lru, ScoringConfig{}, nil)
	assert.Error(t, err)
	_, err = NewLeaderboardService(db.Results(), scorer, nil, ScoringConfig{}, nil)
	assert.Error(t, err)
}
