// Package interpreter turns free player text into game commands.
package interpreter

import (
	"strings"

	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/textnorm"
)

type Kind string

const (
	KindMove    Kind = "move"
	KindInspect Kind = "inspect"
	KindTalk    Kind = "talk"
	KindUnknown Kind = "unknown"
)

// Command is a parsed player action.
type Command struct {
	Kind Kind
	// Target is the location, evidence or NPC the command refers to, as typed by the player.
	Target string
	// Extra is the rest of the text, the question in a talk command.
	Extra string
}

type verb struct {
	words []string
	kind  Kind
}

// verbs are tried in order, so multi-word verbs come before their single-word prefixes.
var verbs = []verb{
	{words: []string{"go", "to"}, kind: KindMove},
	{words: []string{"move", "to"}, kind: KindMove},
	{words: []string{"walk", "to"}, kind: KindMove},
	{words: []string{"travel", "to"}, kind: KindMove},
	{words: []string{"go"}, kind: KindMove},
	{words: []string{"look", "at"}, kind: KindInspect},
	{words: []string{"inspect"}, kind: KindInspect},
	{words: []string{"examine"}, kind: KindInspect},
	{words: []string{"search"}, kind: KindInspect},
	{words: []string{"talk", "to"}, kind: KindTalk},
	{words: []string{"talk", "with"}, kind: KindTalk},
	{words: []string{"speak", "to"}, kind: KindTalk},
	{words: []string{"speak", "with"}, kind: KindTalk},
	{words: []string{"ask"}, kind: KindTalk},
}

type Interpreter struct {
	aliases map[string]bool
}

// New creates an interpreter that knows the NPC names of truth so that "ask draco malfoy where he was" can be split
// into the NPC and the question.
func New(truth *story.Truth) *Interpreter {
	aliases := map[string]bool{}
	for _, npc := range truth.NPCs() {
		for _, name := range append([]string{npc.ID, npc.Name}, npc.Aliases...) {
			if n := textnorm.Identifier(name); n != "" {
				aliases[n] = true
			}
		}
	}
	return &Interpreter{aliases: aliases}
}

// Parse never fails. Text that doesn't start with a known verb is KindUnknown.
func (in *Interpreter) Parse(text string) Command {
	words := strings.Fields(text)
	for _, v := range verbs {
		if !hasVerb(words, v.words) {
			continue
		}
		rest := words[len(v.words):]
		if len(rest) == 0 {
			return Command{Kind: KindUnknown, Extra: strings.TrimSpace(text)}
		}
		if v.kind == KindTalk {
			return in.talk(rest)
		}
		return Command{Kind: v.kind, Target: strings.Join(rest, " ")}
	}
	return Command{Kind: KindUnknown, Extra: strings.TrimSpace(text)}
}

// talk splits "draco: where were you", "draco where were you" or "where were you, draco" into target and question.
//
// A colon separates the target only when the text before it names an NPC, so "ask draco about 10:30" keeps its
// question intact. Otherwise the longest NPC alias anywhere in the text is the target and the words after it are the
// question. When nothing follows the alias the words before it are the question.
func (in *Interpreter) talk(rest []string) Command {
	joined := strings.Join(rest, " ")
	target, question, hasColon := strings.Cut(joined, ":")
	if hasColon && in.isAlias(target) {
		return Command{Kind: KindTalk, Target: strings.TrimSpace(target), Extra: strings.TrimSpace(question)}
	}

	if start, end, ok := in.findAlias(rest); ok {
		extra := strings.Join(rest[end:], " ")
		if strings.TrimSpace(strings.Trim(extra, questionTrim)) == "" && !onlyFiller(rest[:start]) {
			extra = strings.Join(rest[:start], " ")
		}
		return Command{
			Kind:   KindTalk,
			Target: strings.Join(rest[start:end], " "),
			Extra:  strings.TrimSpace(strings.Trim(extra, questionTrim)),
		}
	}

	if hasColon {
		return Command{Kind: KindTalk, Target: strings.TrimSpace(target), Extra: strings.TrimSpace(question)}
	}
	return Command{Kind: KindTalk, Target: joined}
}

// questionTrim is punctuation left over around a question once the NPC name is cut out of it.
const questionTrim = ",;:- "

// filler words may precede an NPC name without being a question.
var filler = map[string]bool{"the": true, "a": true, "an": true, "old": true, "young": true}

func (in *Interpreter) isAlias(text string) bool {
	n := textnorm.Normalize(text)
	return in.aliases[n] || in.aliases[strings.TrimPrefix(n, "the ")]
}

// findAlias returns the word span of the longest NPC alias in words. Ties go to the earliest span.
func (in *Interpreter) findAlias(words []string) (int, int, bool) {
	var bestStart, bestEnd, bestLen int
	for i := range words {
		for j := len(words); j > i; j-- {
			n := textnorm.Normalize(strings.Join(words[i:j], " "))
			if len(n) > bestLen && in.aliases[n] {
				bestStart, bestEnd, bestLen = i, j, len(n)
			}
		}
	}
	return bestStart, bestEnd, bestLen > 0
}

func onlyFiller(words []string) bool {
	for _, w := range words {
		if !filler[textnorm.Normalize(w)] {
			return false
		}
	}
	return true
}

func hasVerb(words, verb []string) bool {
	if len(words) < len(verb) {
		return false
	}
	for i, w := range verb {
		if textnorm.Normalize(words[i]) != w {
			return false
		}
	}
	return true
}
