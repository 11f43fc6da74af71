package voice

import (
	"fmt"
	"strings"
	"time"

	"sidekick/internal/checklist"
)

// Update describes the change applied to one item.
type Update struct {
	ItemID  string            `json:"item_id"`
	Section string            `json:"section"`
	Label   string            `json:"label"`
	Status  *checklist.Status `json:"status,omitempty"`
	Clause  string            `json:"clause"`
}

// Result of interpreting one utterance. When Matched is false Document is the
// input document, untouched.
type Result struct {
	Document checklist.Document `json:"document"`
	Matched  bool               `json:"matched"`
	Updates  []Update           `json:"updates"`
	Clauses  []string           `json:"clauses"`
}

// Interpreter turns free-text utterances into checklist updates.
type Interpreter struct {
	rules Rules
	re    compiled
	Now   func() time.Time
}

// New validates and compiles a rule table.
func New(rules Rules) (Interpreter, error) {
	if err := rules.Validate(); err != nil {
		return Interpreter{}, fmt.Errorf("voice rules: %w", err)
	}
	if rules.SourceTag == "" {
		rules.SourceTag = DefaultSourceTag
	}
	re, err := compile(rules)
	if err != nil {
		return Interpreter{}, err
	}
	return Interpreter{rules: rules, re: re, Now: time.Now}, nil
}

// Default returns an interpreter over DefaultRules.
func Default() Interpreter {
	in, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return in
}

func (in Interpreter) Rules() Rules { return in.rules }

func (in Interpreter) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

// Segment splits an utterance into clauses on conjunctions and sentence
// punctuation, dropping clauses shorter than the configured minimum.
func (in Interpreter) Segment(utterance string) []string {
	if strings.TrimSpace(utterance) == "" {
		return nil
	}
	var clauses []string
	for _, part := range in.re.splitter.Split(utterance, -1) {
		part = strings.Join(strings.Fields(part), " ")
		if len(part) < in.rules.MinClauseLength || part == "" {
			continue
		}
		clauses = append(clauses, part)
	}
	return clauses
}

// InferStatus returns the most severe status category with a keyword in text.
func (in Interpreter) InferStatus(text string) (checklist.Status, bool) {
	for _, status := range Severity {
		if re, ok := in.re.keywords[status]; ok && re.MatchString(text) {
			return status, true
		}
	}
	return "", false
}

type itemRef struct {
	section int
	item    int
}

// MatchItems returns the ids of every item a clause refers to, in section
// then item order.
func (in Interpreter) MatchItems(doc checklist.Document, clause string) []string {
	var ids []string
	for _, ref := range in.match(doc, clause) {
		ids = append(ids, doc.Sections[ref.section].Items[ref.item].ID)
	}
	return ids
}

// match tests the clause against each label by substring containment and
// against the synonym table.
func (in Interpreter) match(doc checklist.Document, clause string) []itemRef {
	text := strings.ToLower(clause)
	var active []string
	for _, syn := range in.rules.Synonyms {
		for _, trig := range syn.Triggers {
			if strings.Contains(text, strings.ToLower(strings.TrimSpace(trig))) {
				active = append(active, strings.ToLower(strings.TrimSpace(syn.Fragment)))
				break
			}
		}
	}
	var refs []itemRef
	for si, sec := range doc.Sections {
		for ii, it := range sec.Items {
			label := normalizeLabel(it.Label)
			if label == "" {
				continue
			}
			hit := strings.Contains(text, label)
			for _, frag := range active {
				if hit {
					break
				}
				hit = strings.Contains(label, frag)
			}
			if hit {
				refs = append(refs, itemRef{section: si, item: ii})
			}
		}
	}
	return refs
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// group is a clause that named items plus any following clauses that did not;
// those trailing clauses ("... but also loose") describe the same items.
// Clauses before the first match have no subject and are skipped.
type group struct {
	refs []itemRef
	text []string
}

// Interpret applies an utterance to a snapshot of doc. Clauses are handled
// left to right and items in document order, so identical input always gives
// identical output. An item named by several clauses keeps the most severe
// status they carry. Nothing matching is not an error: the input document
// comes back with Matched=false.
func (in Interpreter) Interpret(doc checklist.Document, utterance string) Result {
	res := Result{Document: doc, Updates: []Update{}}
	clauses := in.Segment(utterance)
	res.Clauses = clauses
	if len(clauses) == 0 {
		return res
	}

	var groups []group
	for _, clause := range clauses {
		refs := in.match(doc, clause)
		if len(refs) > 0 {
			groups = append(groups, group{refs: refs, text: []string{clause}})
			continue
		}
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			last.text = append(last.text, clause)
		}
	}
	if len(groups) == 0 {
		return res
	}

	note := fmt.Sprintf("[%s %s]: %s", in.rules.SourceTag, in.now().Format("15:04"), strings.TrimSpace(utterance))
	out := doc.Clone()
	seen := map[itemRef]int{}
	for _, g := range groups {
		text := strings.Join(g.text, " ")
		status, found := in.InferStatus(text)
		for _, ref := range g.refs {
			item := &out.Sections[ref.section].Items[ref.item]
			if i, ok := seen[ref]; ok {
				prev := res.Updates[i].Status
				if found && (prev == nil || rank(status) <= rank(*prev)) {
					s := status
					item.Status = s
					res.Updates[i].Status = &s
					res.Updates[i].Clause = text
				}
				continue
			}
			upd := Update{
				ItemID:  item.ID,
				Section: out.Sections[ref.section].Name,
				Label:   item.Label,
				Clause:  text,
			}
			if found {
				s := status
				item.Status = s
				upd.Status = &s
			}
			item.Notes = note
			seen[ref] = len(res.Updates)
			res.Updates = append(res.Updates, upd)
		}
	}
	res.Document = out
	res.Matched = true
	return res
}
