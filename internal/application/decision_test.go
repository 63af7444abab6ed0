package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

var decisionNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func readyVerdict(candidateScore float64, th domain.Thresholds) *domain.Verdict {
	th.CandidateScore = candidateScore
	return &domain.Verdict{
		Arbiter: domain.ArbiterAssessment{
			Scores:         map[string]float64{"design": candidateScore},
			RedFlags:       []string{},
			Recommendation: domain.DecisionHire,
			Confidence:     0.8,
		},
		ModeratorSummary: "Strong showing.",
		AutoDecision:     domain.DecisionHire,
		Thresholds:       th,
		RetestHistory:    []domain.RetestEntry{},
	}
}

func newTestDecisions(t *testing.T, uow ports.UnitOfWork, metrics ports.MetricsCollector) *DecisionService {
	t.Helper()
	opts := []DecisionOption{WithDecisionClock(func() time.Time { return decisionNow })}
	if metrics != nil {
		opts = append(opts, WithDecisionMetrics(metrics))
	}
	svc, err := NewDecisionService(uow, RetryConfig{MaxAttempts: 3, InitialWait: 1, MaxWait: 5}, nil, opts...)
	require.NoError(t, err, "decision service should build")
	return svc
}

func TestApplyDecision_HireColdStart(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	metrics := newRecordingMetrics()

	// Given a verdict for a role nobody has held
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

	// When the user hires
	got, err := newTestDecisions(t, db, metrics).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
	require.NoError(t, err, "hire should apply")

	// Then the session is completed with the decision stamped
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, decisionNow.Equal(*got.CompletedAt))
	assert.Equal(t, domain.DecisionHire, got.Verdict.FinalDecision)
	assert.Equal(t, domain.DecidedByUser, got.Verdict.DecidedBy)

	// And a phantom predecessor precedes the new holder
	history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
	require.NoError(t, err)
	require.Len(t, history, 2)

	phantom := history[0]
	assert.True(t, phantom.IsSynthetic)
	assert.Equal(t, domain.PhantomModelPrefix+session.Role, phantom.ModelID)
	assert.False(t, phantom.IsOpen())
	assert.InDelta(t, 7.5, *phantom.InterviewAvgScore, 1e-9)
	assert.True(t, decisionNow.Add(-domain.PhantomAge).Equal(phantom.AssignedAt))

	hired := history[1]
	assert.Equal(t, session.CandidateModel, hired.ModelID)
	assert.True(t, hired.IsOpen())
	assert.False(t, hired.IsSynthetic)
	assert.InDelta(t, 8.0, *hired.InterviewAvgScore, 1e-9)
	assert.Equal(t, session.ID, hired.Metadata["session_id"])

	// And the stored session matches
	stored, err := db.Sessions().GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, domain.DecisionHire, stored.Verdict.FinalDecision)

	assert.Equal(t, 1.0, metrics.count("decisions_total", map[string]string{"decision": "hire"}))
}

func TestApplyDecision_HireClosesIncumbent(t *testing.T) {
	tests := []struct {
		name       string
		incumbent  string
		sameModel  bool
		wantReason domain.RemovalReason
	}{
		{name: "different model replaces", incumbent: "anthropic/claude-3-5-sonnet-latest", wantReason: domain.RemovalReplaced},
		{name: "same model upskills", incumbent: "openai/gpt-4o", sameModel: true, wantReason: domain.RemovalUpskilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := newTestStore(t)

			// Given an incumbent holding the role
			incumbent := seedAssignment(t, db, tt.incumbent, domain.Float(7), decisionNow.Add(-72*time.Hour))
			th := domain.Thresholds{CurrentHolder: tt.incumbent, PreviousAvg: domain.Float(7), IsSameModel: tt.sameModel}
			session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8.2, th))

			// When the candidate is hired
			_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
			require.NoError(t, err)

			// Then the incumbent is closed with the right reason and no phantom appears
			history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
			require.NoError(t, err)
			require.Len(t, history, 2)

			assert.Equal(t, incumbent.ID, history[0].ID)
			require.NotNil(t, history[0].RemovedAt)
			assert.True(t, decisionNow.Equal(*history[0].RemovedAt))
			assert.Equal(t, tt.wantReason, history[0].RemovalReason)

			open, err := db.Assignments().OpenAssignments(ctx, session.UserID, session.Role)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, session.CandidateModel, open[0].ModelID)

			synthetic, err := db.Assignments().HasSyntheticAssignment(ctx, session.UserID, session.Role)
			require.NoError(t, err)
			assert.False(t, synthetic)
		})
	}
}

func TestApplyDecision_ColdStartSkipsExistingPhantom(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	// Given a phantom left behind by an earlier hire that was later vacated
	phantom := domain.PhantomPredecessor("user-1", "backend-engineer", 6, decisionNow.Add(-30*24*time.Hour))
	require.NoError(t, db.Assignments().InsertAssignment(ctx, &phantom))
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

	_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
	require.NoError(t, err)

	history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
	require.NoError(t, err)
	assert.Len(t, history, 2, "only the hire is added")
}

func TestApplyDecision_Retest(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(6.8, domain.Thresholds{IsColdStart: true}))

	competencies := []string{"system design", "testing"}
	got, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionRetest, competencies)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusBriefed, got.Status)
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.Verdict.RetestHistory, 1)
	entry := got.Verdict.RetestHistory[0]
	assert.Equal(t, competencies, entry.Competencies)
	assert.Equal(t, domain.RetestPending, entry.Result)
	assert.True(t, decisionNow.Equal(entry.Date))

	// The caller's slice is not shared with the stored entry.
	competencies[0] = "changed"
	assert.Equal(t, "system design", entry.Competencies[0])

	history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
	require.NoError(t, err)
	assert.Empty(t, history, "a retest touches no assignments")
}

func TestApplyDecision_Reject(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	incumbent := seedAssignment(t, db, "anthropic/claude-3-5-sonnet-latest", domain.Float(8), decisionNow.Add(-time.Hour))
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(5, domain.Thresholds{CurrentHolder: incumbent.ModelID, PreviousAvg: domain.Float(8)}))

	got, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionReject, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, domain.DecisionReject, got.Verdict.FinalDecision)

	open, err := db.Assignments().OpenAssignments(ctx, session.UserID, session.Role)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, incumbent.ID, open[0].ID, "the incumbent keeps the role")
}

func TestApplyDecision_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	metrics := newRecordingMetrics()
	svc := newTestDecisions(t, db, metrics)
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

	first, err := svc.ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
	require.NoError(t, err)
	second, err := svc.ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
	require.NoError(t, err, "repeating the same decision succeeds")

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Verdict.FinalDecision, second.Verdict.FinalDecision)

	history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
	require.NoError(t, err)
	assert.Len(t, history, 2, "no duplicate assignments")
	assert.Equal(t, 1.0, metrics.total("decisions_total"))
}

func TestApplyDecision_ConcurrentSubmissions(t *testing.T) {
	tests := []struct {
		name     string
		decision domain.Decision
		wantOpen int
		wantAll  int
	}{
		{name: "double hire", decision: domain.DecisionHire, wantOpen: 1, wantAll: 2},
		{name: "double reject", decision: domain.DecisionReject, wantOpen: 0, wantAll: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := newTestStore(t)
			metrics := newRecordingMetrics()
			svc := newTestDecisions(t, db, metrics)
			session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

			// Given the same decision submitted from several callers at once
			const callers = 8
			errs := make([]error, callers)
			var wg sync.WaitGroup
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = svc.ApplyDecision(ctx, session.ID, tt.decision, nil)
				}()
			}
			wg.Wait()

			// Then every caller succeeds and the decision lands once
			for i, err := range errs {
				require.NoError(t, err, "caller %d", i)
			}
			all, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
			require.NoError(t, err)
			assert.Len(t, all, tt.wantAll)
			open, err := db.Assignments().OpenAssignments(ctx, session.UserID, session.Role)
			require.NoError(t, err)
			assert.Len(t, open, tt.wantOpen)
			assert.Equal(t, 1.0, metrics.total("decisions_total"))
		})
	}
}

func TestApplyDecision_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("different decision after one is stamped", func(t *testing.T) {
		db := newTestStore(t)
		svc := newTestDecisions(t, db, nil)
		session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))
		_, err := svc.ApplyDecision(ctx, session.ID, domain.DecisionReject, nil)
		require.NoError(t, err)

		_, err = svc.ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
		var decErr *domain.DecisionError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, stepStamp, decErr.Step)
		assert.Equal(t, session.ID, decErr.SessionID)

		history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("session without verdict", func(t *testing.T) {
		db := newTestStore(t)
		session := seedSession(t, db, domain.StatusScoring, nil)

		_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)
		assert.ErrorIs(t, err, domain.ErrNoVerdict)
	})

	t.Run("unknown session", func(t *testing.T) {
		db := newTestStore(t)

		_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, "missing", domain.DecisionHire, nil)

		assert.ErrorIs(t, err, domain.ErrNotFound)
		var decErr *domain.DecisionError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, stepLoadSession, decErr.Step)
	})

	t.Run("invalid decision", func(t *testing.T) {
		db := newTestStore(t)

		_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, "any", domain.Decision("promote"), nil)

		assert.ErrorIs(t, err, domain.ErrInvalidDecision)
		var decErr *domain.DecisionError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, stepValidate, decErr.Step)
	})

	t.Run("verdict not ready", func(t *testing.T) {
		db := newTestStore(t)
		session := seedSession(t, db, domain.StatusScoring, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

		_, err := newTestDecisions(t, db, nil).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)

		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		history, err := db.Assignments().ListAssignments(ctx, session.UserID, session.Role)
		require.NoError(t, err)
		assert.Empty(t, history, "a failed transition rolls back the hire")

		stored, err := db.Sessions().GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Verdict.FinalDecision, "the stamp is rolled back")
	})
}

func TestApplyDecision_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	session := seedSession(t, db, domain.StatusVerdictReady, readyVerdict(8, domain.Thresholds{IsColdStart: true}))

	t.Run("recovers", func(t *testing.T) {
		flaky := &flakyUoW{
			UnitOfWork: db,
			failures:   2,
			err:        ports.NewStoreError("interview_sessions", "GetSessionForUpdate", ports.ErrServiceUnavailable),
		}

		got, err := newTestDecisions(t, flaky, nil).ApplyDecision(ctx, session.ID, domain.DecisionHire, nil)

		require.NoError(t, err, "third attempt should succeed")
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.Equal(t, int32(3), flaky.attempts.Load())
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		flaky := &flakyUoW{UnitOfWork: db, failures: 5, err: errors.New("disk full")}

		_, err := newTestDecisions(t, flaky, nil).ApplyDecision(ctx, session.ID, domain.DecisionReject, nil)

		require.Error(t, err)
		assert.Equal(t, int32(1), flaky.attempts.Load())
	})
}

func TestNewDecisionService_RequiresStore(t *testing.T) {
	_, err := NewDecisionService(nil, RetryConfig{}, nil)
	assert.Error(t, err)
}
