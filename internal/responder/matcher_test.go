package responder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := Default()
	require.NoError(t, err)
	return m
}

func TestPackingConversation(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)
	var state State

	reply := m.Match("hello", &state)
	assert.Equal(t, "greeting", reply.Rule)
	assert.Equal(t, "Hello! Welcome to Move It. How can I help you with your move today?", reply.Text)
	assert.True(t, state.IsZero())

	reply = m.Match("packing", &state)
	assert.Equal(t, "packing", reply.Rule)
	assert.Contains(t, reply.Text, "Would you like more details about our packing options?")
	assert.Equal(t, State{InquiringAboutPacking: true}, state)

	reply = m.Match("yes", &state)
	assert.Equal(t, "packing_detailed", reply.Rule)
	assert.True(t, state.InquiringAboutPacking)
	assert.True(t, state.InquiringAboutPackingDetailed)

	reply = m.Match("yes", &state)
	assert.Equal(t, "packing_contact", reply.Rule)
	assert.Contains(t, reply.Text, "contact@move-it.com")
	assert.Contains(t, reply.Text, "+44 20 1234 5678")
	assert.True(t, state.InquiringAboutPackingDetailed, "contact reply does not advance the state")

	reply = m.Match("no thanks, not interested", &state)
	assert.Equal(t, "decline", reply.Rule)
	assert.Equal(t, "No problem! If there's anything else I can help you with, just let me know.", reply.Text)
	assert.True(t, state.IsZero())
}

func TestFallback(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	for _, input := range []string{"asdkjasdj", "", "   ", "know", "nothing", "this"} {
		var state State
		reply := m.Match(input, &state)
		assert.True(t, reply.Fallback(), "input %q matched %s", input, reply.Rule)
		assert.Equal(t, FallbackReply, reply.Text)
		assert.True(t, strings.HasPrefix(reply.Text, "I'm sorry, I didn't quite catch that."))
		assert.True(t, state.IsZero())
	}
}

func TestMatchIsTotal(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	inputs := []string{
		"", "?", "12345", "<script>alert(1)</script>", "🙂", strings.Repeat("a", 10000),
		"HELLO", "piano", "why choose you", "non", "لا", "не",
	}
	for _, input := range inputs {
		var state State
		reply := m.Match(input, &state)
		assert.NotEmpty(t, reply.Text, "input %q", input)
		assert.NotEmpty(t, reply.Rule, "input %q", input)
	}
}

func TestMatchNilState(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	reply := m.Match("packing", nil)
	assert.Equal(t, "packing", reply.Rule)
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	var state State
	assert.Equal(t, "greeting", m.Match("HeLLo There", &state).Rule)
	assert.Equal(t, "greeting", m.Match("Hi", &state).Rule)
}

func TestDeclineResetsFromEveryState(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	states := map[string]State{
		"idle":             {},
		"packing asked":    {InquiringAboutPacking: true},
		"packing detailed": {InquiringAboutPacking: true, InquiringAboutPackingDetailed: true},
		"why choose us":    {InquiringAboutWhyChooseMoveIt: true},
		"special items":    {InquiringAboutSpecialItems: true},
		"everything": {
			InquiringAboutPacking:         true,
			InquiringAboutPackingDetailed: true,
			InquiringAboutWhyChooseMoveIt: true,
			InquiringAboutSpecialItems:    true,
		},
	}
	for name, start := range states {
		for _, input := range []string{
			"no", "no thanks", "not interested", "non", "não", "ne", "لا شكرا",
			"no special items", "no, i don't have any", "não tenho nenhum",
		} {
			state := start
			reply := m.Match(input, &state)
			assert.Equal(t, "decline", reply.Rule, "%s: %q", name, input)
			assert.True(t, state.IsZero(), "%s: %q left %+v", name, input, state)
		}
	}
}

func TestSpecialItemsNoneClearsOnlyItsFlag(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	for _, input := range []string{"I don't have any", "nothing special", "none of those"} {
		state := State{
			InquiringAboutPacking:         true,
			InquiringAboutPackingDetailed: true,
			InquiringAboutSpecialItems:    true,
		}
		reply := m.Match(input, &state)
		assert.Equal(t, "special_items_none", reply.Rule, "input %q", input)
		assert.Equal(t, State{InquiringAboutPacking: true, InquiringAboutPackingDetailed: true}, state, "input %q", input)
	}
}

func TestShortTriggersNeedWholeWords(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	for input, rule := range map[string]string{
		"what is the fee?":        "pricing",
		"can i book for friday":   "booking",
		"any deals on right now?": "discount",
		"do you move a harp":      "special_items",
		"i need to move my safe":  "special_items",
		"i want to reschedule":    "cancellation",
		"can i pay by card":       "payment",
	} {
		var state State
		assert.Equal(t, rule, m.Match(input, &state).Rule, "input %q", input)
	}
	for _, input := range []string{"i feel fine", "facebook", "ideal", "sharp corners", "is it safe?"} {
		var state State
		assert.True(t, m.Match(input, &state).Fallback(), "input %q", input)
	}
}

func TestNegativeWordBoundaries(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	for _, input := range []string{"no", "No.", "no, not today", "well... no"} {
		var state State
		assert.Equal(t, "decline", m.Match(input, &state).Rule, "input %q", input)
	}
	for _, input := range []string{"know", "nothing", "piano", "casino"} {
		var state State
		assert.NotEqual(t, "decline", m.Match(input, &state).Rule, "input %q", input)
	}
}

func TestAffirmativeWithoutContextFallsBack(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	var state State
	reply := m.Match("yes", &state)
	assert.True(t, reply.Fallback())
	assert.True(t, state.IsZero())
}

func TestWhyChooseUsLeadsToServices(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)
	var state State

	reply := m.Match("Why choose Move It?", &state)
	assert.Equal(t, "why_choose_us", reply.Rule)
	assert.True(t, state.InquiringAboutWhyChooseMoveIt)

	reply = m.Match("sure", &state)
	assert.Equal(t, "why_choose_us_services", reply.Rule)
	assert.Contains(t, reply.Text, "services.html")
}

func TestSpecialItemsBranches(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	t.Run("elaboration", func(t *testing.T) {
		var state State
		assert.Equal(t, "special_items", m.Match("Can you move my piano?", &state).Rule)
		assert.True(t, state.InquiringAboutSpecialItems)
		assert.Equal(t, "special_items_more", m.Match("I have a grand piano", &state).Rule)
	})

	t.Run("none", func(t *testing.T) {
		var state State
		m.Match("do you move antiques", &state)
		reply := m.Match("I don't have any", &state)
		assert.Equal(t, "special_items_none", reply.Rule)
		assert.False(t, state.InquiringAboutSpecialItems)
	})

	t.Run("process without inquiry", func(t *testing.T) {
		var state State
		reply := m.Match("How do you handle fragile glassware?", &state)
		assert.Equal(t, "special_items_process", reply.Rule)
		assert.True(t, state.IsZero())
	})
}

func TestGreetingsInEveryLanguage(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	cases := map[string]string{
		"hello":   "en",
		"bonjour": "fr",
		"hola":    "es",
		"olá":     "pt",
		"مرحبا":   "ar",
		"zdravo":  "sr",
		"здраво":  "sr",
	}
	for input, lang := range cases {
		var state State
		reply := m.Match(input, &state)
		assert.Equal(t, "greeting", reply.Rule, "input %q", input)
		assert.Equal(t, lang, reply.Language, "input %q", input)
	}
}

func TestPackingFlowInEveryLanguage(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	flows := map[string][3]string{
		"fr": {"emballage", "oui", "non"},
		"es": {"embalaje", "sí", "vale"},
		"pt": {"embalagem", "sim", "não"},
		"ar": {"تغليف", "نعم", "لا شكرا"},
		"sr": {"pakovanje", "da", "ne"},
	}
	for lang, flow := range flows {
		var state State
		reply := m.Match(flow[0], &state)
		assert.Equal(t, "packing", reply.Rule, lang)
		assert.Equal(t, lang, reply.Language)

		reply = m.Match(flow[1], &state)
		assert.Equal(t, "packing_detailed", reply.Rule, lang)
		assert.True(t, state.InquiringAboutPackingDetailed, lang)

		m.Match(flow[2], &state)
		if lang == "es" {
			assert.True(t, state.InquiringAboutPackingDetailed, lang)
		} else {
			assert.True(t, state.IsZero(), lang)
		}
	}
}

// English rules are evaluated first, so an English word inside another
// language's sentence wins.
func TestEarlierLanguageWins(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	var state State
	reply := m.Match("no gracias", &state)
	assert.Equal(t, "decline", reply.Rule)
	assert.Equal(t, "en", reply.Language)
}

func TestMatchNormalizesToNFC(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	decomposed := norm.NFD.String("olá")
	require.NotEqual(t, "olá", decomposed)

	var state State
	reply := m.Match(decomposed, &state)
	assert.Equal(t, "greeting", reply.Rule)
	assert.Equal(t, "pt", reply.Language)
}

func TestFirstMatchWins(t *testing.T) {
	t.Parallel()

	m, err := New([]Rule{
		{Name: "first", Contains: []string{"move"}, Reply: "first"},
		{Name: "second", Contains: []string{"move"}, Reply: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", m.Match("I want to move", nil).Text)

	m, err = New([]Rule{
		{Name: "second", Contains: []string{"move"}, Reply: "second"},
		{Name: "first", Contains: []string{"move"}, Reply: "first"},
	})
	require.NoError(t, err)
	assert.Equal(t, "second", m.Match("I want to move", nil).Text)
}

func TestPreconditionsAndActions(t *testing.T) {
	t.Parallel()

	m, err := New([]Rule{
		{Name: "gated", Words: []string{"go"}, Requires: []Flag{FlagPacking}, Clear: []Flag{FlagPacking}, Reply: "gated"},
		{Name: "opener", Contains: []string{"start"}, Unless: []Flag{FlagPacking}, Set: []Flag{FlagPacking, FlagSpecialItems}, Reply: "opened"},
		{Name: "wipe", Exact: []string{"reset"}, Reset: true, Set: []Flag{FlagWhyChooseUs}, Reply: "wiped"},
	})
	require.NoError(t, err)

	var state State
	assert.True(t, m.Match("go", &state).Fallback())

	assert.Equal(t, "opened", m.Match("start", &state).Text)
	assert.Equal(t, State{InquiringAboutPacking: true, InquiringAboutSpecialItems: true}, state)
	assert.True(t, m.Match("start again", &state).Fallback(), "unless blocks a second open")

	assert.Equal(t, "gated", m.Match("go!", &state).Text)
	assert.Equal(t, State{InquiringAboutSpecialItems: true}, state)

	assert.True(t, m.Match("reset please", &state).Fallback(), "exact needs the whole input")
	assert.Equal(t, "wiped", m.Match("RESET", &state).Text)
	assert.Equal(t, State{InquiringAboutWhyChooseMoveIt: true}, state)
}

func TestNewRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	cases := map[string][]Rule{
		"no triggers":  {{Name: "empty", Reply: "x"}},
		"no name":      {{Contains: []string{"a"}, Reply: "x"}},
		"empty reply":  {{Name: "r", Contains: []string{"a"}}},
		"blank phrase": {{Name: "r", Contains: []string{" "}, Reply: "x"}},
		"unknown flag": {{Name: "r", Contains: []string{"a"}, Set: []Flag{"moving"}, Reply: "x"}},
		"duplicate": {
			{Name: "r", Contains: []string{"a"}, Reply: "x"},
			{Name: "r", Contains: []string{"b"}, Reply: "y"},
		},
	}
	for name, rules := range cases {
		_, err := New(rules)
		assert.Error(t, err, name)
	}
}

func TestRulesEndWithFallback(t *testing.T) {
	t.Parallel()
	m := defaultMatcher(t)

	rules := m.Rules()
	require.NotEmpty(t, rules)
	last := rules[len(rules)-1]
	assert.Equal(t, FallbackRule, last.Name)
	assert.True(t, last.Always)
	assert.Equal(t, "en", rules[0].Language)
}
