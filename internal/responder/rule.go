package responder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rule is one condition group: a disjunction of triggers, an optional
// precondition on the dialogue state, the state changes it applies and the
// canned reply it produces.
type Rule struct {
	Name     string   `toml:"name"`
	Language string   `toml:"-"`
	Contains []string `toml:"contains"` // substring of the normalized input
	Exact    []string `toml:"exact"`    // equal to the whole normalized input
	Words    []string `toml:"words"`    // whole word inside the normalized input
	Requires []Flag   `toml:"requires"` // all must be set
	Unless   []Flag   `toml:"unless"`   // none may be set
	Reset    bool     `toml:"reset"`    // clear every flag before Clear/Set
	Clear    []Flag   `toml:"clear"`
	Set      []Flag   `toml:"set"`
	Reply    string   `toml:"reply"`

	// Always marks the catch-all; it matches any input in any state.
	Always bool `toml:"-"`

	words []*regexp.Regexp
}

// compile lowercases triggers and builds the whole-word patterns.
// Boundaries are any rune that is not a letter, digit or underscore, so
// "no" matches in "no, thanks" but not in "know" or "piano".
func (r *Rule) compile() error {
	r.Contains = lowerAll(r.Contains)
	r.Exact = lowerAll(r.Exact)
	r.Words = lowerAll(r.Words)

	r.words = make([]*regexp.Regexp, 0, len(r.Words))
	for _, w := range r.Words {
		re, err := regexp.Compile(`(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(w) + `(?:$|[^\p{L}\p{N}_])`)
		if err != nil {
			return fmt.Errorf("rule %s: word %q: %w", r.Name, w, err)
		}
		r.words = append(r.words, re)
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalize(s)
	}
	return out
}

// triggered reports whether any trigger fires on the normalized input.
func (r *Rule) triggered(input string) bool {
	if r.Always {
		return true
	}
	for _, phrase := range r.Contains {
		if strings.Contains(input, phrase) {
			return true
		}
	}
	for _, phrase := range r.Exact {
		if input == phrase {
			return true
		}
	}
	for _, re := range r.words {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

// allowed reports whether the rule's precondition holds in state.
func (r *Rule) allowed(state *State) bool {
	for _, f := range r.Requires {
		if !state.Has(f) {
			return false
		}
	}
	for _, f := range r.Unless {
		if state.Has(f) {
			return false
		}
	}
	return true
}

// apply performs the rule's state changes: reset, then clear, then set.
func (r *Rule) apply(state *State) {
	if r.Reset {
		state.Reset()
	}
	for _, f := range r.Clear {
		state.Set(f, false)
	}
	for _, f := range r.Set {
		state.Set(f, true)
	}
}

// validate checks a rule loaded from a catalog.
func (r *Rule) validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("rule without name"))
	}
	if strings.TrimSpace(r.Reply) == "" {
		errs = append(errs, fmt.Errorf("rule %s: empty reply", r.Name))
	}
	if !r.Always && len(r.Contains)+len(r.Exact)+len(r.Words) == 0 {
		errs = append(errs, fmt.Errorf("rule %s: no triggers", r.Name))
	}
	for _, group := range [][]string{r.Contains, r.Exact, r.Words} {
		for _, phrase := range group {
			if strings.TrimSpace(phrase) == "" {
				errs = append(errs, fmt.Errorf("rule %s: blank trigger", r.Name))
			}
		}
	}
	for _, flags := range [][]Flag{r.Requires, r.Unless, r.Clear, r.Set} {
		for _, f := range flags {
			if _, err := ParseFlag(string(f)); err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", r.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
