package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// echoLLM answers with the first user message it sees, so a leak of one
// session's history into another shows up in the answer.
type echoLLM struct{}

func (echoLLM) Name() string { return "echo" }

func (echoLLM) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	first := req.Prompt.Messages[0].Content
	return domain.Completion{Text: "Final Answer: " + strings.SplitN(first, "\n", 2)[0]}, nil
}

func TestSessionManager_ConcurrentSessionsAreIsolated(t *testing.T) {
	deps := newTestDeps(t, echoLLM{}, productSearchTools(), AgentOptions{MaxSteps: 5})
	mgr := NewSessionManager(discardLogger(), deps, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	results := make([]*domain.TurnResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mgr.Run(context.Background(), fmt.Sprintf("query %d", i))
		}(i)
	}
	wg.Wait()

	ids := map[domain.SessionID]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.True(t, results[i].Succeeded())
		assert.Equal(t, fmt.Sprintf("query %d", i), results[i].Text)
		assert.Len(t, results[i].Steps, 1)
		ids[results[i].SessionID] = true
	}
	assert.Len(t, ids, n)
}

func TestSessionManager_EmptyQuery(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{say("Final Answer: x")}}
	mgr := NewSessionManager(discardLogger(), newTestDeps(t, llm, productSearchTools(), AgentOptions{}), time.Minute)

	_, err := mgr.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Zero(t, llm.Calls())
}

func TestSessionManager_Timeout(t *testing.T) {
	llm := &scriptedLLM{block: true}
	mgr := NewSessionManager(discardLogger(), newTestDeps(t, llm, productSearchTools(), AgentOptions{}), 50*time.Millisecond)

	start := time.Now()
	_, err := mgr.Run(context.Background(), "slow query")

	assert.ErrorIs(t, err, domain.ErrTurnTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSessionManager_CallerCancellation(t *testing.T) {
	llm := &scriptedLLM{block: true}
	mgr := NewSessionManager(discardLogger(), newTestDeps(t, llm, productSearchTools(), AgentOptions{}), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := mgr.Run(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTurnTimeout)
}

func TestSessionManager_RunSessionKeepsID(t *testing.T) {
	llm := &scriptedLLM{replies: []llmReply{say("Final Answer: ok")}}
	mgr := NewSessionManager(discardLogger(), newTestDeps(t, llm, productSearchTools(), AgentOptions{}), time.Minute)

	res, err := mgr.RunSession(context.Background(), "fixed-id", "q")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("fixed-id"), res.SessionID)
	assert.Len(t, mgr.Tools(), 2)
}
