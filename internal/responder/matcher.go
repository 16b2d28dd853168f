// Package responder implements the rule-based chat engine. User input is
// checked against an ordered list of rules; the first rule whose triggers
// fire and whose dialogue precondition holds supplies the reply.
package responder

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FallbackReply is returned when no catalog rule matches.
const FallbackReply = "I'm sorry, I didn't quite catch that. Could you rephrase your question? " +
	"You can ask me about our services, pricing, packing, storage or booking a move."

// FallbackRule is the name reported for the catch-all.
const FallbackRule = "fallback"

// Reply is the outcome of one Match call.
type Reply struct {
	Text     string
	Rule     string
	Language string
}

// Fallback reports whether the catch-all produced the reply.
func (r Reply) Fallback() bool {
	return r.Rule == FallbackRule
}

// Matcher evaluates rules in order. It holds no per-conversation state and
// is safe for concurrent use; callers pass their own State.
type Matcher struct {
	rules []*Rule
}

// New builds a Matcher from rules in evaluation order and appends the
// catch-all. It returns an error if any rule is invalid.
func New(rules []Rule) (*Matcher, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}
	m := &Matcher{rules: make([]*Rule, 0, len(rules)+1)}
	for i := range rules {
		r := rules[i]
		if err := r.compile(); err != nil {
			return nil, err
		}
		m.rules = append(m.rules, &r)
	}
	m.rules = append(m.rules, &Rule{Name: FallbackRule, Always: true, Reply: FallbackReply})
	return m, nil
}

// Validate checks every rule and rejects duplicate names within a language.
func Validate(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if err := r.validate(); err != nil {
			errs = append(errs, err)
		}
		if r.Always {
			errs = append(errs, fmt.Errorf("rule %s: catch-all is added automatically", r.Name))
		}
		key := r.Language + "/" + r.Name
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate rule %s", key))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}

// Rules returns a copy of the rules in evaluation order, catch-all last.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	for i, r := range m.rules {
		out[i] = *r
	}
	return out
}

// Match returns the reply for input and applies the winning rule's state
// changes to state. It always returns exactly one reply. A nil state is
// treated as a fresh one and discarded.
func (m *Matcher) Match(input string, state *State) Reply {
	if state == nil {
		state = &State{}
	}
	normalized := normalize(input)

	for _, r := range m.rules {
		if !r.triggered(normalized) || !r.allowed(state) {
			continue
		}
		r.apply(state)
		slog.Debug("Chat rule matched", "rule", r.Name, "language", r.Language)
		return Reply{Text: r.Reply, Rule: r.Name, Language: r.Language}
	}

	// Unreachable while the catch-all is last; kept so Match stays total.
	return Reply{Text: FallbackReply, Rule: FallbackRule}
}

// normalize composes the input to NFC and lowercases it. Punctuation and
// diacritics are kept.
func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
