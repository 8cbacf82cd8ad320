package duckdb

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/services"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_Sessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	// 1. Save the active session after the first step
	rec := domain.SessionRecord{
		SessionID:  "sess-1",
		UserQuery:  "I want tomatoes",
		Status:     domain.SessionActive,
		TotalSteps: 1,
		Steps: []domain.StepRecord{
			{Index: 1, Type: domain.StepThought, Content: "search for tomatoes"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.SaveSession(ctx, rec))

	fetched, err := repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, fetched.Status)
	assert.Equal(t, "I want tomatoes", fetched.UserQuery)
	require.Len(t, fetched.Steps, 1)

	// 2. Save again once the turn completed
	rec.Status = domain.SessionCompleted
	rec.FinalAnswer = "Here are some tomatoes"
	rec.TotalSteps = 3
	rec.Steps = append(rec.Steps,
		domain.StepRecord{Index: 2, Type: domain.StepAction, Content: `product_search {"query":"tomatoes"}`},
		domain.StepRecord{Index: 3, Type: domain.StepFinalAnswer, Content: "Here are some tomatoes"},
	)
	rec.UpdatedAt = created.Add(time.Second)
	require.NoError(t, repo.SaveSession(ctx, rec))

	fetched, err = repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, fetched.Status)
	assert.Equal(t, "Here are some tomatoes", fetched.FinalAnswer)
	assert.Equal(t, 3, fetched.TotalSteps)
	require.Len(t, fetched.Steps, 3)
	for i, st := range fetched.Steps {
		assert.Equal(t, i+1, st.Index)
	}
	assert.Equal(t, domain.StepFinalAnswer, fetched.Steps[2].Type)
	assert.True(t, created.Equal(fetched.CreatedAt))
}

func TestRepository_GetSessionNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRepository_ListSessionsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, id := range []domain.SessionID{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveSession(ctx, domain.SessionRecord{
			SessionID: id, UserQuery: "q", Status: domain.SessionCompleted,
			CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	list, err := repo.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.SessionID("c"), list[0].SessionID)
	assert.Equal(t, domain.SessionID("b"), list[1].SessionID)
}

func TestRepository_RecorderStoresLongMultiByteSteps(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := services.NewStepRecorder(logger, repo, nil)
	created := time.Now().UTC().Truncate(time.Second)

	rec.Record(ctx, domain.SessionRecord{
		SessionID: "sess-vi", UserQuery: "rau muống", Status: domain.SessionActive,
		CreatedAt: created, UpdatedAt: created,
	})
	rec.Record(ctx, domain.SessionRecord{
		SessionID: "sess-vi", UserQuery: "rau muống", Status: domain.SessionCompleted,
		FinalAnswer: "xong", TotalSteps: 1,
		Steps: []domain.StepRecord{
			{Index: 1, Type: domain.StepObservation, Content: strings.Repeat("ế", 3000)},
		},
		CreatedAt: created, UpdatedAt: created,
	})

	got, err := repo.GetSession(ctx, "sess-vi")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	require.Len(t, got.Steps, 1)
	assert.True(t, utf8.ValidString(got.Steps[0].Content))
}
