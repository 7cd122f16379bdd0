// Package rag assembles the prompt context for a question: a window of
// recent turns sized by question complexity, retrieved profile passages and
// related stored answers, within a fixed character budget.
package rag

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/observability/metrics"
	"ai-live-hints-service/internal/service/classify"
	"ai-live-hints-service/internal/service/knowledge"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/precomputed"
)

const (
	DefaultTopK            = 3
	DefaultReferenceK      = 3
	DefaultMaxContextChars = 4000
	recentTopics           = 5
)

// Retriever searches the knowledge corpus.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]knowledge.Passage, error)
	Profile() string
}

// ReferenceSource finds stored answers related to a question.
type ReferenceSource interface {
	ContextAnswers(ctx context.Context, question string, k int) ([]precomputed.Match, error)
}

// TopicSource lists recently discussed topics.
type TopicSource interface {
	Recent(n int) []string
}

// Config tunes assembly.
type Config struct {
	TopK       int
	ReferenceK int
	// MaxContextChars bounds the runes of the whole system prompt plus the
	// text of the recent-turn window. Few-shot examples and the question are
	// not counted. The persona, category instructions and focus rules are
	// always present; turns, passages, references and topics are added only
	// while they fit.
	MaxContextChars int
}

// DefaultConfig returns the standard assembly settings.
func DefaultConfig() Config {
	return Config{
		TopK:            DefaultTopK,
		ReferenceK:      DefaultReferenceK,
		MaxContextChars: DefaultMaxContextChars,
	}
}

// Request is the input of one assembly.
type Request struct {
	Question string
	History  []string
	Category classify.Category
	Profile  string
}

// Context is the assembled prompt context.
type Context struct {
	Complexity   classify.Complexity
	Window       []string
	Passages     []knowledge.Passage
	References   []precomputed.Match
	Topics       []string
	SystemPrompt string
	Messages     []llm.Message
	// Degraded is set when retrieval failed and only the window was used.
	Degraded bool
}

// Assembler builds prompt contexts. Any collaborator may be nil.
type Assembler struct {
	retriever  Retriever
	references ReferenceSource
	topics     TopicSource
	cfg        Config
	log        zerolog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(retriever Retriever, references ReferenceSource, topics TopicSource, cfg Config) *Assembler {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.ReferenceK <= 0 {
		cfg.ReferenceK = def.ReferenceK
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = def.MaxContextChars
	}
	return &Assembler{
		retriever:  retriever,
		references: references,
		topics:     topics,
		cfg:        cfg,
		log:        logging.WithComponent("rag"),
	}
}

// allowsPassages reports whether profile passages help this category.
func allowsPassages(c classify.Category) bool {
	return c == classify.Experience || c == classify.General
}

// Assemble never fails. Retrieval errors set Degraded.
func (a *Assembler) Assemble(ctx context.Context, req Request) Context {
	out := Context{Complexity: classify.ComplexityOf(req.Question, req.History)}
	if !req.Category.Valid() {
		req.Category = classify.Classify(req.Question)
	}

	var profileText string
	if a.retriever != nil {
		profileText = a.retriever.Profile()
	}
	base := BuildSystemPrompt(req.Category, profileText)
	budget := a.cfg.MaxContextChars - runes(a.systemPrompt(req.Profile, base, out))

	out.Window, budget = fitWindow(lastN(req.History, out.Complexity.Window()), budget)

	if a.retriever != nil && allowsPassages(req.Category) {
		passages, err := a.retriever.Retrieve(ctx, req.Question, a.cfg.TopK)
		if err != nil {
			out.Degraded = true
			a.log.Warn().Err(err).Msg("Passage retrieval failed, using recent turns only")
		}
		section := runes(passagesHeader + sectionEnd)
		for _, p := range passages {
			n := runes(passageLine(p))
			if len(out.Passages) == 0 {
				n += section
			}
			if n > budget {
				continue
			}
			out.Passages = append(out.Passages, p)
			budget -= n
		}
	}

	if a.references != nil {
		refs, err := a.references.ContextAnswers(ctx, req.Question, a.cfg.ReferenceK)
		if err != nil {
			out.Degraded = true
			a.log.Warn().Err(err).Msg("Reference answers unavailable")
		}
		section := runes(referencesHeader + sectionEnd)
		for _, r := range refs {
			n := runes(referenceLine(r))
			if len(out.References) == 0 {
				n += section
			}
			if n > budget {
				continue
			}
			out.References = append(out.References, r)
			budget -= n
		}
	}

	if a.topics != nil {
		if topics := a.topics.Recent(recentTopics); len(topics) > 0 && runes(topicsLine(topics)) <= budget {
			out.Topics = topics
		}
	}
	if out.Degraded {
		metrics.DefaultMetrics.RecordContextDegraded()
	}

	out.SystemPrompt = a.systemPrompt(req.Profile, base, out)
	out.Messages = buildMessages(out.SystemPrompt, FewShot(req.Profile), out.Window, req.Question)

	a.log.Debug().
		Str("category", string(req.Category)).
		Str("complexity", string(out.Complexity)).
		Int("window", len(out.Window)).
		Int("passages", len(out.Passages)).
		Int("references", len(out.References)).
		Bool("degraded", out.Degraded).
		Msg("Context assembled")
	return out
}

func (a *Assembler) systemPrompt(profile, base string, c Context) string {
	var b strings.Builder
	b.WriteString(Persona(profile))
	b.WriteString("\n\n")
	b.WriteString(base)

	if len(c.Passages) > 0 {
		b.WriteString(passagesHeader)
		for _, p := range c.Passages {
			b.WriteString(passageLine(p))
		}
		b.WriteString(sectionEnd)
	}
	if len(c.References) > 0 {
		b.WriteString(referencesHeader)
		for _, r := range c.References {
			b.WriteString(referenceLine(r))
		}
		b.WriteString(sectionEnd)
	}
	if len(c.Topics) > 0 {
		b.WriteString(topicsLine(c.Topics))
	}
	b.WriteString("\n\n")
	b.WriteString(focusInstructions)
	return b.String()
}

const (
	passagesHeader   = "\n\n--- RELEVANT PROFILE INFORMATION ---\n"
	referencesHeader = "\n\n--- SIMILAR PREPARED ANSWERS ---\n"
	sectionEnd       = "--- END ---"
)

func passageLine(p knowledge.Passage) string {
	return "- " + p.Text + "\n"
}

func referenceLine(r precomputed.Match) string {
	return "Q: " + r.Question + "\nA: " + r.Answer.Answer + "\n"
}

func topicsLine(topics []string) string {
	return "\n\nTopics discussed in this session: " + strings.Join(topics, ", ")
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

func buildMessages(system string, examples []Example, window []string, question string) []llm.Message {
	msgs := make([]llm.Message, 0, 3+2*len(examples))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, ex := range examples {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: ex.User},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Assistant},
		)
	}
	if len(window) > 0 {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: "Conversation so far:\n- " + strings.Join(window, "\n- "),
		})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: currentQuestion(question)})
	return msgs
}

func lastN(history []string, n int) []string {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// fitWindow drops the oldest turns until the window fits the budget. A single
// turn longer than the budget is cut to it.
func fitWindow(window []string, budget int) ([]string, int) {
	if budget <= 0 {
		return nil, 0
	}
	used := 0
	start := len(window)
	for start > 0 {
		n := utf8.RuneCountInString(window[start-1])
		if used+n > budget {
			break
		}
		used += n
		start--
	}
	if start == len(window) && len(window) > 0 {
		last := truncate(window[len(window)-1], budget)
		return []string{last}, budget - utf8.RuneCountInString(last)
	}
	return append([]string(nil), window[start:]...), budget - used
}
