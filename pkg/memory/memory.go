// Package memory implements the per-agent memory facade: a short-term
// conversation buffer with token-bounded truncation, and an optional
// long-term retrieval path through an embedder and a vector store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/seoflow-ai/seoflow/pkg/embeddings"
	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
)

// Turn is one short-term conversation entry.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Fragment is one long-term retrieval hit.
type Fragment struct {
	Text  string
	Score float32
}

// Config tunes a memory facade.
type Config struct {
	// MaxTurns bounds the short-term buffer; oldest turns are evicted first.
	MaxTurns int `yaml:"max_turns"`
	// Encoding is the tiktoken encoding used for token counting.
	Encoding string `yaml:"encoding"`
}

// Memory belongs to exactly one agent. The long-term store may be shared
// across agents, but every access goes through the owning agent's facade,
// which serializes its own calls.
type Memory struct {
	agentID string
	logger  *slog.Logger

	mu    sync.Mutex
	turns []Turn
	max   int

	counter  *tokenCounter
	embedder embeddings.Embedder
	store    vectorstore.Store
}

// Option configures optional memory capabilities.
type Option func(*Memory)

// WithLongTerm attaches a long-term retrieval path.
func WithLongTerm(embedder embeddings.Embedder, store vectorstore.Store) Option {
	return func(m *Memory) {
		m.embedder = embedder
		m.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) { m.logger = logger }
}

// New creates a memory facade for one agent.
func New(agentID string, cfg Config, opts ...Option) *Memory {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 200
	}
	m := &Memory{
		agentID: agentID,
		logger:  slog.Default(),
		max:     cfg.MaxTurns,
		counter: newTokenCounter(cfg.Encoding),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendTurn records a conversation turn. Never fails; when the buffer is
// full the oldest turn is evicted.
func (m *Memory) AppendTurn(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: role, Content: content, Timestamp: time.Now().UTC()})
	if len(m.turns) > m.max {
		m.turns = m.turns[len(m.turns)-m.max:]
	}
}

// RecentTurns returns the newest turns whose combined size fits maxTokens.
// Truncation drops oldest content first; the newest turn is always included
// even if it alone exceeds the budget.
func (m *Memory) RecentTurns(maxTokens int) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.turns) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		out := make([]Turn, len(m.turns))
		copy(out, m.turns)
		return out
	}

	total := 0
	start := len(m.turns)
	for i := len(m.turns) - 1; i >= 0; i-- {
		cost := m.counter.Count(m.turns[i].Content) + 4 // per-turn framing overhead
		if total+cost > maxTokens && start < len(m.turns) {
			break
		}
		total += cost
		start = i
	}

	out := make([]Turn, len(m.turns)-start)
	copy(out, m.turns[start:])
	return out
}

// Len returns the number of buffered turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Retrieve queries long-term memory. A missing or failing backend degrades
// to an empty result so the caller can proceed on short-term memory alone.
func (m *Memory) Retrieve(ctx context.Context, query string, k int) []Fragment {
	if m.store == nil || m.embedder == nil || k <= 0 {
		return nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("long-term memory embed failed, degrading to short-term only",
			"agent", m.agentID, "error", err)
		return nil
	}

	matches, err := m.store.Query(ctx, embedding, k)
	if err != nil {
		m.logger.Warn("long-term memory query failed, degrading to short-term only",
			"agent", m.agentID, "error", err)
		return nil
	}

	fragments := make([]Fragment, 0, len(matches))
	for _, match := range matches {
		fragments = append(fragments, Fragment{Text: match.Document.Content, Score: match.Score})
	}
	return fragments
}

// Remember stores text in long-term memory. Returns an error when the
// long-term path is unavailable; callers treat this as non-fatal.
func (m *Memory) Remember(ctx context.Context, text string, metadata map[string]any) error {
	if m.store == nil || m.embedder == nil {
		return fmt.Errorf("agent %s has no long-term memory configured", m.agentID)
	}
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed for remember: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["agent_id"] = m.agentID

	return m.store.Upsert(ctx, vectorstore.Document{
		ID:        fmt.Sprintf("%s-%d", m.agentID, time.Now().UnixNano()),
		Content:   text,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
}

// tokenCounter counts tokens with tiktoken when the encoding is available
// and falls back to a bytes/4 heuristic otherwise (encodings load lazily and
// may be unavailable offline).
type tokenCounter struct {
	once     sync.Once
	encoding string
	enc      *tiktoken.Tiktoken
}

func newTokenCounter(encoding string) *tokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &tokenCounter{encoding: encoding}
}

func (c *tokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
