package voice_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/checklist"
	"sidekick/internal/voice"
)

func fixedInterpreter(t *testing.T) voice.Interpreter {
	t.Helper()
	in := voice.Default()
	in.Now = func() time.Time { return time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC) }
	return in
}

func craneDoc() checklist.Document {
	return checklist.Generate(checklist.DefaultCatalog(), checklist.Profile{})
}

func itemOf(t *testing.T, d checklist.Document, id string) checklist.Item {
	t.Helper()
	it, _, ok := d.Item(id)
	require.True(t, ok)
	return it
}

func TestInterpretHoistMotorRepair(t *testing.T) {
	in := fixedInterpreter(t)
	res := in.Interpret(craneDoc(), "Hoist Motor and Brakes needs repair")
	require.True(t, res.Matched)

	h1 := itemOf(t, res.Document, "h1")
	assert.Equal(t, checklist.StatusRepair, h1.Status)
	assert.Contains(t, h1.Notes, "Hoist Motor and Brakes needs repair")
	assert.Equal(t, "[Voice 10:30]: Hoist Motor and Brakes needs repair", h1.Notes)

	require.Len(t, res.Updates, 1)
	assert.Equal(t, "h1", res.Updates[0].ItemID)
	require.NotNil(t, res.Updates[0].Status)
	assert.Equal(t, checklist.StatusRepair, *res.Updates[0].Status)

	// the rest of the document is untouched
	for _, id := range []string{"s1", "s2", "h2", "h3", "h4", "t1", "t2", "t3"} {
		it := itemOf(t, res.Document, id)
		assert.Equal(t, checklist.StatusOK, it.Status, id)
		assert.Empty(t, it.Notes, id)
	}
}

func TestInterpretDirectLabelMatch(t *testing.T) {
	res := fixedInterpreter(t).Interpret(craneDoc(), "support columns are loose")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusAttention, itemOf(t, res.Document, "s1").Status)
	assert.Equal(t, checklist.StatusOK, itemOf(t, res.Document, "s2").Status)
}

func TestInterpretSeverityWins(t *testing.T) {
	res := fixedInterpreter(t).Interpret(craneDoc(), "hoist motor is fine but also loose")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusAttention, itemOf(t, res.Document, "h1").Status)

	res = fixedInterpreter(t).Interpret(craneDoc(), "bolts look good, though one is broken")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusRepair, itemOf(t, res.Document, "s2").Status)
}

func TestInterpretRepeatedItemKeepsMostSevere(t *testing.T) {
	in := fixedInterpreter(t)
	res := in.Interpret(craneDoc(), "hoist motor is broken and hoist motor is ok now")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusRepair, itemOf(t, res.Document, "h1").Status)
	require.Len(t, res.Updates, 1)
	require.NotNil(t, res.Updates[0].Status)
	assert.Equal(t, checklist.StatusRepair, *res.Updates[0].Status)
	assert.Equal(t, "hoist motor is broken", res.Updates[0].Clause)

	res = in.Interpret(craneDoc(), "bolts are loose. bolts are good")
	assert.Equal(t, checklist.StatusAttention, itemOf(t, res.Document, "s2").Status)

	// a later, more severe mention still wins
	res = in.Interpret(craneDoc(), "bolts are good. bolts are broken")
	assert.Equal(t, checklist.StatusRepair, itemOf(t, res.Document, "s2").Status)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "bolts are broken", res.Updates[0].Clause)
}

func TestInterpretLeadingUnmatchedClauseIsSkipped(t *testing.T) {
	res := fixedInterpreter(t).Interpret(craneDoc(), "weather is bad and bolts are fine")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusOK, itemOf(t, res.Document, "s2").Status)
	require.Len(t, res.Updates, 1)
	assert.Nil(t, res.Updates[0].Status)
	assert.Equal(t, "bolts are fine", res.Updates[0].Clause)
	assert.Equal(t, "[Voice 10:30]: weather is bad and bolts are fine", itemOf(t, res.Document, "s2").Notes)
}

func TestInterpretTrailingUnmatchedClauseJoinsPreviousItem(t *testing.T) {
	res := fixedInterpreter(t).Interpret(craneDoc(), "wheels are fine, one is loose. festoon cable ok")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusAttention, itemOf(t, res.Document, "t3").Status)
	assert.Equal(t, checklist.StatusOK, itemOf(t, res.Document, "t2").Status)
	require.Len(t, res.Updates, 2)
	assert.Equal(t, "t3", res.Updates[0].ItemID)
	assert.Equal(t, "wheels are fine one is loose", res.Updates[0].Clause)
	assert.Equal(t, "t2", res.Updates[1].ItemID)
}

func TestInterpretWithoutKeywordOnlyUpdatesNotes(t *testing.T) {
	doc, err := checklist.SetStatus(craneDoc(), "t2", checklist.StatusAttention)
	require.NoError(t, err)
	res := fixedInterpreter(t).Interpret(doc, "festoon cable has a new clamp")
	require.True(t, res.Matched)
	t2 := itemOf(t, res.Document, "t2")
	assert.Equal(t, checklist.StatusAttention, t2.Status)
	assert.Equal(t, "[Voice 10:30]: festoon cable has a new clamp", t2.Notes)
	require.Len(t, res.Updates, 1)
	assert.Nil(t, res.Updates[0].Status)
}

func TestInterpretSeparateClauses(t *testing.T) {
	res := fixedInterpreter(t).Interpret(craneDoc(), "bolts are loose. wheels are bad")
	require.True(t, res.Matched)
	assert.Equal(t, checklist.StatusAttention, itemOf(t, res.Document, "s2").Status)
	assert.Equal(t, checklist.StatusRepair, itemOf(t, res.Document, "t3").Status)
}

func TestInterpretNoMatchIsNoOp(t *testing.T) {
	in := fixedInterpreter(t)
	doc := craneDoc()
	for _, utterance := range []string{"", "   \n\t", "the weather is nice today", "ok"} {
		res := in.Interpret(doc, utterance)
		assert.False(t, res.Matched, "%q", utterance)
		assert.Equal(t, doc, res.Document, "%q", utterance)
		assert.Empty(t, res.Updates)
	}
}

func TestInterpretDoesNotMutateInput(t *testing.T) {
	doc := craneDoc()
	_ = fixedInterpreter(t).Interpret(doc, "support columns are broken")
	assert.Equal(t, checklist.StatusOK, itemOf(t, doc, "s1").Status)
	assert.Empty(t, itemOf(t, doc, "s1").Notes)
}

func TestInterpretIsDeterministic(t *testing.T) {
	in := fixedInterpreter(t)
	a := in.Interpret(craneDoc(), "trolley rails okay and hoist cable is bad")
	b := in.Interpret(craneDoc(), "trolley rails okay and hoist cable is bad")
	assert.Equal(t, a, b)
}

func TestSegment(t *testing.T) {
	in := voice.Default()
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"hook ok", []string{"hook ok"}},
		{"bolts loose and hook ok", []string{"bolts loose", "hook ok"}},
		{"Bolts loose. Hook OK; wheels bad", []string{"Bolts loose", "Hook OK", "wheels bad"}},
		{"a, hook   worn", []string{"hook worn"}},
		{"brandy band", []string{"brandy band"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, in.Segment(tc.in), tc.in)
	}
}

func TestInferStatus(t *testing.T) {
	in := voice.Default()
	cases := []struct {
		text  string
		want  checklist.Status
		found bool
	}{
		{"needs repair", checklist.StatusRepair, true},
		{"brake failed", checklist.StatusRepair, true},
		{"caution near the hook", checklist.StatusAttention, true},
		{"LOOSE", checklist.StatusAttention, true},
		{"looks okay", checklist.StatusOK, true},
		{"good but loose", checklist.StatusAttention, true},
		{"ok but broken", checklist.StatusRepair, true},
		{"take a look", "", false},
		{"bolts in disrepair", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, found := in.InferStatus(tc.text)
		assert.Equal(t, tc.found, found, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestMatchItemsSynonyms(t *testing.T) {
	in := voice.Default()
	doc := checklist.Generate(checklist.DefaultCatalog(), checklist.Profile{HoistType: "bridge"})
	assert.Equal(t, []string{"s1"}, in.MatchItems(doc, "the structure looks fine"))
	assert.Equal(t, []string{"h1"}, in.MatchItems(doc, "hoist sounds rough"))
	assert.Empty(t, in.MatchItems(doc, "nothing relevant here"))
}

func TestCustomRules(t *testing.T) {
	rules := voice.DefaultRules()
	rules.Keywords[checklist.StatusRepair] = append(rules.Keywords[checklist.StatusRepair], "cracked")
	rules.SourceTag = "Dictation"
	in, err := voice.New(rules)
	require.NoError(t, err)
	in.Now = func() time.Time { return time.Date(2026, 1, 1, 8, 5, 0, 0, time.UTC) }

	res := in.Interpret(craneDoc(), "bottom block & hook cracked")
	require.True(t, res.Matched)
	h3 := itemOf(t, res.Document, "h3")
	assert.Equal(t, checklist.StatusRepair, h3.Status)
	assert.Equal(t, "[Dictation 08:05]: bottom block & hook cracked", h3.Notes)
}

func TestRulesValidate(t *testing.T) {
	rules := voice.DefaultRules()
	rules.Synonyms = append(rules.Synonyms, voice.Synonym{Fragment: "drum"})
	_, err := voice.New(rules)
	assert.Error(t, err)

	rules = voice.DefaultRules()
	rules.Keywords["FIXED"] = []string{"fixed"}
	assert.Error(t, rules.Validate())
}
