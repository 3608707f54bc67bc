package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/coordination"
	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/repository"
	"github.com/yantianqi1/write-agent/internal/session"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// fakeLLM is a minimal llm.Gateway-shaped stub: each call returns the next
// queued response, looping on the last one once exhausted.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	content := "a generated chapter"
	if len(f.responses) > 0 {
		if idx < len(f.responses) {
			content = f.responses[idx]
		} else {
			content = f.responses[len(f.responses)-1]
		}
	}
	return llm.Response{Content: content, FinishReason: llm.FinishStop, Usage: llm.Usage{TotalTokens: 10}}, nil
}

// unparseableLLM always returns content the completer's tolerant JSON
// parser rejects, so Complete keeps the prior bundle unchanged — used to
// exercise turns whose bundle is intentionally left incomplete without
// depending on the completer's prompt-construction details.
type unparseableLLM struct{}

func (unparseableLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Content: "not json", FinishReason: llm.FinishStop}, nil
}

func newTestAgent(t *testing.T, genResponses []string) (*Agent, *repository.Repositories, *generator.Service) {
	t.Helper()
	repos := repository.New()
	memSvc := memory.New(repos.Memory, nil, nil)
	sessSvc := session.NewService(repos.Session, 50, nil, nil)
	classifier := intent.New(nil)
	extractor := settings.NewExtractor()
	completer := settings.NewCompleter(unparseableLLM{})
	checker := consistency.NewChecker(nil)
	genLLM := &fakeLLM{responses: genResponses}
	generatorSvc := generator.NewService(genLLM, memSvc, checker, repos.Chapter, generator.Config{
		ContextWindowTokens: 8192,
		RetrievalK:          4,
		DefaultLocale:       "en",
	})
	genCoord := coordination.NewGenerationCoordinator(coordination.Coalesce)
	limiter := coordination.NewProviderLimiter(8, 0)

	ag := New(sessSvc, classifier, extractor, completer, checker, generatorSvc, memSvc, nil, repos.Chapter, genCoord, limiter, repos, nil, Config{
		CompletionThreshold:  0.7,
		ConsistencyThreshold: 0.5,
		DefaultLocale:        "en",
	})
	return ag, repos, generatorSvc
}

func TestChatColdStartProducesNoGeneration(t *testing.T) {
	ag, _, _ := newTestAgent(t, nil)

	reply, err := ag.Chat(context.Background(), "", "proj-1", "I'm thinking about a heist story set in Tokyo.")
	require.NoError(t, err)

	assert.Nil(t, reply.Generated)
	assert.Equal(t, intent.Chat, reply.Intent.Intent)
	assert.NotEmpty(t, reply.SessionID)
	assert.NotEmpty(t, reply.Text)
}

func TestChatExplicitGenerateContentProducesChapter(t *testing.T) {
	ag, _, _ := newTestAgent(t, []string{"Mira stepped into the rain-slicked alley.", "Mira begins hunting the rogue AI."})

	msg := "Write chapter 1. Our protagonist is Mira, a cyberpunk detective hunting a rogue AI through Shanghai."
	reply, err := ag.Chat(context.Background(), "", "proj-2", msg)
	require.NoError(t, err)

	require.NotNil(t, reply.Generated)
	assert.Equal(t, 1, reply.Generated.ChapterNumber)
	assert.NotEmpty(t, reply.Generated.Content)
	assert.Greater(t, reply.Generated.WordCount, 0)
	assert.Equal(t, intent.GenerateContent, reply.Intent.Intent)
}

func TestChatContinueContentAdvancesChapterNumber(t *testing.T) {
	ag, _, _ := newTestAgent(t, []string{"Mira stepped into the rain.", "summary one", "Mira presses further into the dark.", "summary two"})

	msg := "Write chapter 1. Our protagonist is Mira, a cyberpunk detective hunting a rogue AI through Shanghai."
	first, err := ag.Chat(context.Background(), "", "proj-3", msg)
	require.NoError(t, err)
	require.NotNil(t, first.Generated)

	// Chat's runGeneration already promotes chapter 1's DRAFT to CURRENT, so
	// "continue" can advance off it without a separate accept call.
	second, err := ag.Chat(context.Background(), first.SessionID, "proj-3", "Continue the story.")
	require.NoError(t, err)

	require.NotNil(t, second.Generated)
	assert.Equal(t, 2, second.Generated.ChapterNumber)
	assert.Equal(t, intent.ContinueContent, second.Intent.Intent)
}

func TestChatRoleContradictionBlocksGenerationWithoutRollback(t *testing.T) {
	ag, _, _ := newTestAgent(t, nil)
	ctx := context.Background()

	first, err := ag.Chat(ctx, "", "proj-4", "Our protagonist is Alex.")
	require.NoError(t, err)
	assert.Nil(t, first.Generated)

	second, err := ag.Chat(ctx, first.SessionID, "proj-4", "Actually, antagonist is Alex.")
	require.NoError(t, err)

	assert.Nil(t, second.Generated)
	require.NotNil(t, second.Consistency)
	assert.True(t, second.Consistency.HasError())
	assert.Contains(t, second.Text, "clarify")
}

func TestRunGenerationCoalescesConcurrentSameChapterRequests(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	gen := &blockingGen{release: release, started: started}
	repos := repository.New()
	memSvc := memory.New(repos.Memory, nil, nil)
	checker := consistency.NewChecker(nil)
	generatorSvc := generator.NewService(gen, memSvc, checker, repos.Chapter, generator.Config{ContextWindowTokens: 8192, RetrievalK: 4, DefaultLocale: "en"})
	genCoord := coordination.NewGenerationCoordinator(coordination.Coalesce)
	limiter := coordination.NewProviderLimiter(8, 0)

	ag := &Agent{generator: generatorSvc, genCoord: genCoord, limiter: limiter, cfg: Config{DefaultLocale: "en"}}

	req := generator.Request{Mode: generator.Full, ProjectID: "proj-5", ChapterNumber: 1}
	bundle := settings.Bundle{}

	var wg sync.WaitGroup
	results := make([]generator.Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ag.runGeneration(context.Background(), req, bundle)
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Chapter.Content, results[1].Chapter.Content)
	assert.LessOrEqual(t, gen.callCount(), 2)
}

// blockingGen lets the first Generate call block until release closes, so a
// second concurrent call for the same GenerationKey can be observed racing
// the first one into GenerationCoordinator.Run.
type blockingGen struct {
	mu      sync.Mutex
	count   int
	release <-chan struct{}
	started chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.count++
	g.mu.Unlock()

	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return llm.Response{Content: "coalesced chapter text", FinishReason: llm.FinishStop}, nil
}

func (g *blockingGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
