// Package chat implements the retrieval-and-answer pipeline: ensure the
// index is ready, opportunistically re-sync it, retrieve the passages most
// relevant to the user's question, and generate a grounded answer with the
// configured chat model.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/kbchat-go/internal/budget"
	"github.com/54b3r/kbchat-go/internal/indexer"
	"github.com/54b3r/kbchat-go/internal/logging"
	"github.com/54b3r/kbchat-go/internal/rag"
)

// Turn roles accepted in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// systemPromptHeader opens every system prompt. The two fixed phrases give
// the model an exact fallback wording for unanswerable and off-topic
// questions, so downstream consumers can match on them.
const systemPromptHeader = `You are a helpful and knowledgeable assistant specializing in Milvus and Zilliz.
Answer the user's question using ONLY the provided context below.

Rules:
- If the context does not contain the answer, say exactly: "I don't have that information yet."
- If the question is not about Milvus or Zilliz, say exactly: "This topic is outside my expertise. I specialize in Milvus and Zilliz. Please ask questions related to these technologies."
- Be concise and accurate. Do not invent details that are not in the context.

Context:
`

// Turn is one prior message in the conversation history.
type Turn struct {
	// Role is RoleUser or RoleAssistant. Unknown roles are skipped.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Passage is one retrieved chunk returned alongside the answer so callers
// can surface provenance.
type Passage struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Title is the parent document's title.
	Title string `json:"title"`
	// ID is the upstream numeric record ID of the parent document.
	ID int `json:"id"`
	// DocumentID is the stable upstream document identifier.
	DocumentID string `json:"documentId"`
}

// Result is the outcome of one Answer call.
type Result struct {
	// Answer is the generated response text.
	Answer string `json:"answer"`
	// Context holds the passages the answer was grounded on.
	Context []Passage `json:"context"`
}

// Syncer is the index lifecycle dependency. *indexer.Engine satisfies it;
// tests inject a fake.
type Syncer interface {
	// EnsureReady makes sure a collection handle exists.
	EnsureReady(ctx context.Context) error
	// Refresh re-syncs the index if the corpus changed.
	Refresh(ctx context.Context) (indexer.Outcome, error)
}

// Config holds the dependencies and settings for constructing a Pipeline.
type Config struct {
	// Syncer owns the index lifecycle.
	Syncer Syncer
	// Retriever fetches relevant passages for a question.
	Retriever rag.Retriever
	// ChatModel generates the grounded answer.
	ChatModel model.BaseChatModel
	// TopK is the number of passages retrieved per question. Defaults to 3.
	TopK int
	// MaxContextTokens is the estimated token budget for the full prompt.
	// History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// MaxRetries bounds generation attempts on transient model failures.
	// Defaults to 2 retries (3 attempts total).
	MaxRetries int
	// ResponseTimeout bounds each generation attempt. Defaults to 60s.
	ResponseTimeout time.Duration
}

// Pipeline answers questions grounded in the synced knowledge base.
type Pipeline struct {
	syncer           Syncer
	retriever        rag.Retriever
	chatModel        model.BaseChatModel
	topK             int
	maxContextTokens int
	maxRetries       int
	responseTimeout  time.Duration
}

// New constructs a Pipeline from the provided Config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("chat: syncer must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("chat: retriever must not be nil")
	}
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat: chat model must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	timeout := cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Pipeline{
		syncer:           cfg.Syncer,
		retriever:        cfg.Retriever,
		chatModel:        cfg.ChatModel,
		topK:             topK,
		maxContextTokens: maxCtx,
		maxRetries:       retries,
		responseTimeout:  timeout,
	}, nil
}

// Answer runs the full pipeline for one question. The index is brought up
// first (fatal on failure), then opportunistically refreshed (failures are
// logged and the stale-but-usable index serves the request). Retrieval and
// generation failures propagate.
func (p *Pipeline) Answer(ctx context.Context, input string, history []Turn) (*Result, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("chat: input must not be blank")
	}

	if err := p.syncer.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("chat: index not ready: %w", err)
	}

	// A refresh failure never fails the request — the last good index state
	// still answers.
	if outcome, err := p.syncer.Refresh(ctx); err != nil {
		log.Warn("chat: index refresh failed, serving from current index", slog.Any("error", err))
	} else if outcome == indexer.OutcomeRefreshed {
		log.Info("chat: index refreshed before answering")
	}

	docs, err := p.retriever.Retrieve(ctx, input, p.topK)
	if err != nil {
		return nil, fmt.Errorf("chat: retrieval: %w", err)
	}

	messages := p.buildMessages(ctx, input, history, docs)

	answer, err := p.generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat: generation: %w", err)
	}

	passages := make([]Passage, len(docs))
	for i, doc := range docs {
		passages[i] = Passage{
			Content:    doc.Content,
			Title:      doc.Title,
			ID:         doc.RecordID,
			DocumentID: doc.DocumentID,
		}
	}

	return &Result{Answer: answer, Context: passages}, nil
}

// buildMessages assembles [system, ...trimmed history, user]. History is
// trimmed oldest-first to fit the token budget.
func (p *Pipeline) buildMessages(ctx context.Context, input string, history []Turn, docs []rag.Document) []*schema.Message {
	system := schema.SystemMessage(buildSystemPrompt(docs))
	user := schema.UserMessage(input)

	var historyMsgs []*schema.Message
	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			historyMsgs = append(historyMsgs, schema.UserMessage(turn.Content))
		case RoleAssistant:
			historyMsgs = append(historyMsgs, schema.AssistantMessage(turn.Content, nil))
		}
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory([]*schema.Message{system, user}, historyMsgs, p.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("chat: dropped history turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
		)
	}

	messages := make([]*schema.Message, 0, len(historyMsgs)+2)
	messages = append(messages, system)
	messages = append(messages, historyMsgs...)
	messages = append(messages, user)
	return messages
}

// generate calls the chat model with bounded retries and a per-attempt
// timeout.
func (p *Pipeline) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.responseTimeout)
		msg, err := p.chatModel.Generate(attemptCtx, messages)
		cancel()
		if err == nil {
			return msg.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.FromContext(ctx).Warn("chat: generation attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return "", fmt.Errorf("after %d attempts: %w", p.maxRetries+1, lastErr)
}

// buildSystemPrompt embeds the retrieved passages into the grounding prompt.
// With no passages the context section states its own emptiness, which steers
// the model to the fixed fallback phrase.
func buildSystemPrompt(docs []rag.Document) string {
	if len(docs) == 0 {
		return systemPromptHeader + "(no relevant content found)\n"
	}

	var sb strings.Builder
	sb.WriteString(systemPromptHeader)
	for _, doc := range docs {
		sb.WriteString("Content: ")
		sb.WriteString(doc.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
