package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/kbchat-go/internal/indexer"
	"github.com/54b3r/kbchat-go/internal/rag"
)

type fakeSyncer struct {
	ensureCalls  int
	refreshCalls int
	ensureErr    error
	refreshErr   error
	outcome      indexer.Outcome
}

func (s *fakeSyncer) EnsureReady(ctx context.Context) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *fakeSyncer) Refresh(ctx context.Context) (indexer.Outcome, error) {
	s.refreshCalls++
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	return s.outcome, nil
}

type fakeRetriever struct {
	docs []rag.Document
	err  error
	topK int
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]rag.Document, error) {
	r.topK = topK
	if r.err != nil {
		return nil, r.err
	}
	return r.docs, nil
}

type fakeChatModel struct {
	calls    int
	failures int
	answer   string
	received []*schema.Message
}

func (m *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	m.received = in
	if m.calls <= m.failures {
		return nil, errors.New("model overloaded")
	}
	return schema.AssistantMessage(m.answer, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in fake")
}

func newTestPipeline(t *testing.T, syncer *fakeSyncer, retriever *fakeRetriever, chatModel *fakeChatModel) *Pipeline {
	t.Helper()
	p, err := New(&Config{
		Syncer:    syncer,
		Retriever: retriever,
		ChatModel: chatModel,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAnswerRejectsBlankInput(t *testing.T) {
	syncer := &fakeSyncer{}
	p := newTestPipeline(t, syncer, &fakeRetriever{}, &fakeChatModel{answer: "hi"})

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := p.Answer(context.Background(), input, nil); err == nil {
			t.Errorf("Answer(%q) succeeded, want error", input)
		}
	}
	if syncer.ensureCalls != 0 {
		t.Errorf("blank input reached the syncer %d times", syncer.ensureCalls)
	}
}

func TestAnswerHappyPath(t *testing.T) {
	retriever := &fakeRetriever{docs: []rag.Document{
		{Content: "Milvus is a vector database.", Title: "Milvus", RecordID: 1, DocumentID: "d1", Score: 0.9},
		{Content: "Zilliz is the managed cloud.", Title: "Zilliz", RecordID: 2, DocumentID: "d2", Score: 0.7},
	}}
	chatModel := &fakeChatModel{answer: "Milvus is a vector database."}
	p := newTestPipeline(t, &fakeSyncer{}, retriever, chatModel)

	res, err := p.Answer(context.Background(), "What is Milvus?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "Milvus is a vector database." {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Context) != 2 {
		t.Fatalf("context passages = %d, want 2", len(res.Context))
	}
	if res.Context[0].Title != "Milvus" || res.Context[0].ID != 1 || res.Context[0].DocumentID != "d1" {
		t.Errorf("passage provenance = %+v", res.Context[0])
	}
	if retriever.topK != 3 {
		t.Errorf("topK = %d, want default 3", retriever.topK)
	}

	if len(chatModel.received) < 2 {
		t.Fatalf("model received %d messages, want at least system+user", len(chatModel.received))
	}
	system := chatModel.received[0]
	if system.Role != schema.System {
		t.Errorf("first message role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "Content: Milvus is a vector database.") {
		t.Error("system prompt missing retrieved passage")
	}
	if !strings.Contains(system.Content, "I don't have that information yet.") {
		t.Error("system prompt missing fixed fallback phrase")
	}
	last := chatModel.received[len(chatModel.received)-1]
	if last.Role != schema.User || last.Content != "What is Milvus?" {
		t.Errorf("last message = %+v, want the user question", last)
	}
}

func TestAnswerCarriesHistory(t *testing.T) {
	chatModel := &fakeChatModel{answer: "ok"}
	p := newTestPipeline(t, &fakeSyncer{}, &fakeRetriever{}, chatModel)

	history := []Turn{
		{Role: RoleUser, Content: "What is an index?"},
		{Role: RoleAssistant, Content: "A structure for fast search."},
		{Role: "tool", Content: "ignored"},
	}
	if _, err := p.Answer(context.Background(), "And HNSW?", history); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// system + 2 history turns + user; the unknown role is dropped.
	if len(chatModel.received) != 4 {
		t.Fatalf("model received %d messages, want 4", len(chatModel.received))
	}
	if chatModel.received[1].Role != schema.User || chatModel.received[1].Content != "What is an index?" {
		t.Errorf("history[0] = %+v", chatModel.received[1])
	}
	if chatModel.received[2].Role != schema.Assistant {
		t.Errorf("history[1] role = %q, want assistant", chatModel.received[2].Role)
	}
}

func TestAnswerRefreshFailureIsNonFatal(t *testing.T) {
	syncer := &fakeSyncer{refreshErr: errors.New("upstream flaky")}
	p := newTestPipeline(t, syncer, &fakeRetriever{}, &fakeChatModel{answer: "still works"})

	res, err := p.Answer(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Answer failed on refresh error: %v", err)
	}
	if res.Answer != "still works" {
		t.Errorf("answer = %q", res.Answer)
	}
	if syncer.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", syncer.refreshCalls)
	}
}

func TestAnswerEnsureReadyFailureIsFatal(t *testing.T) {
	syncer := &fakeSyncer{ensureErr: errors.New("qdrant unreachable")}
	p := newTestPipeline(t, syncer, &fakeRetriever{}, &fakeChatModel{answer: "never"})

	if _, err := p.Answer(context.Background(), "question", nil); err == nil {
		t.Fatal("Answer succeeded with unready index")
	}
	if syncer.refreshCalls != 0 {
		t.Error("refresh attempted after failed EnsureReady")
	}
}

func TestAnswerRetrievalFailureIsFatal(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("search timeout")}
	chatModel := &fakeChatModel{answer: "never"}
	p := newTestPipeline(t, &fakeSyncer{}, retriever, chatModel)

	if _, err := p.Answer(context.Background(), "question", nil); err == nil {
		t.Fatal("Answer succeeded with failing retriever")
	}
	if chatModel.calls != 0 {
		t.Error("model called despite retrieval failure")
	}
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	chatModel := &fakeChatModel{answer: "third time lucky", failures: 2}
	p := newTestPipeline(t, &fakeSyncer{}, &fakeRetriever{}, chatModel)

	res, err := p.Answer(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Answer != "third time lucky" {
		t.Errorf("answer = %q", res.Answer)
	}
	if chatModel.calls != 3 {
		t.Errorf("model calls = %d, want 3", chatModel.calls)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	chatModel := &fakeChatModel{answer: "never", failures: 100}
	p := newTestPipeline(t, &fakeSyncer{}, &fakeRetriever{}, chatModel)

	if _, err := p.Answer(context.Background(), "question", nil); err == nil {
		t.Fatal("Answer succeeded with permanently failing model")
	}
	if chatModel.calls != 3 {
		t.Errorf("model calls = %d, want 3 bounded attempts", chatModel.calls)
	}
}

func TestSystemPromptWithoutPassages(t *testing.T) {
	chatModel := &fakeChatModel{answer: "I don't have that information yet."}
	p := newTestPipeline(t, &fakeSyncer{}, &fakeRetriever{}, chatModel)

	res, err := p.Answer(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(res.Context) != 0 {
		t.Errorf("context passages = %d, want 0", len(res.Context))
	}
	if !strings.Contains(chatModel.received[0].Content, "(no relevant content found)") {
		t.Error("system prompt missing empty-context marker")
	}
}
