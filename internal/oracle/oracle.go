// Package oracle provides a scripted question-answering stand-in for a
// human, backing the ask_user tool. Answers come from a per-scenario YAML
// file; every exchange is kept in an audit log.
package oracle

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/keiko-bench/keiko/internal/models"
	"gopkg.in/yaml.v3"
)

// Oracle answers agent questions. Implementations must be safe for use from
// a single session goroutine; the engine never shares one oracle across runs.
type Oracle interface {
	Ask(question string) (string, error)
	QuestionLog() []models.OracleExchange
}

type answersFile struct {
	Answers []struct {
		Question string `yaml:"question"`
		Answer   string `yaml:"answer"`
	} `yaml:"answers"`
	// Default is returned when no scripted question matches.
	Default string `yaml:"default,omitempty"`
}

type entry struct {
	question string
	tokens   map[string]struct{}
	answer   string
}

// Scripted matches incoming questions against a fixed answer table using an
// exact-match fast path and a normalized keyword-overlap fallback.
type Scripted struct {
	entries      []entry
	defaultReply string

	mu  sync.Mutex
	log []models.OracleExchange
}

// minOverlap is the minimum token-overlap ratio for a fuzzy match.
const minOverlap = 0.5

const fallbackReply = "I don't have an answer for that. Use your best judgment."

// LoadScripted reads an answers file produced alongside a scenario.
func LoadScripted(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading oracle answers %s: %w", path, err)
	}

	var af answersFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("parsing oracle answers %s: %w", path, err)
	}

	s := &Scripted{defaultReply: af.Default}
	if s.defaultReply == "" {
		s.defaultReply = fallbackReply
	}

	for _, a := range af.Answers {
		if strings.TrimSpace(a.Question) == "" {
			continue
		}
		s.entries = append(s.entries, entry{
			question: normalize(a.Question),
			tokens:   tokenSet(a.Question),
			answer:   a.Answer,
		})
	}

	return s, nil
}

// Ask returns the scripted answer whose question best matches, falling back
// to the default reply. The exchange is always appended to the audit log.
func (s *Scripted) Ask(question string) (string, error) {
	answer := s.match(question)

	s.mu.Lock()
	s.log = append(s.log, models.OracleExchange{Question: question, Answer: answer})
	s.mu.Unlock()

	return answer, nil
}

// QuestionLog returns a copy of every exchange so far, in ask order.
func (s *Scripted) QuestionLog() []models.OracleExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OracleExchange, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Scripted) match(question string) string {
	norm := normalize(question)
	for _, e := range s.entries {
		if e.question == norm {
			return e.answer
		}
	}

	asked := tokenSet(question)
	best := -1
	bestScore := 0.0
	for i, e := range s.entries {
		score := overlap(asked, e.tokens)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best >= 0 && bestScore >= minOverlap {
		return s.entries[best].answer
	}

	return s.defaultReply
}

func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return strings.Join(fields, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalize(s)) {
		if len(tok) < 3 {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// overlap is |a∩b| / min(|a|,|b|), 0 when either set is empty.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

// sortedQuestions is a debugging aid used by tests to inspect match tables.
func (s *Scripted) sortedQuestions() []string {
	qs := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		qs = append(qs, e.question)
	}
	sort.Strings(qs)
	return qs
}
