package investigate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Retrieval defaults.
const (
	DefaultChunkWords   = 800
	DefaultChunkOverlap = 100
	DefaultTopK         = 3

	conceptWindow    = 200
	deepConceptWords = 50
)

// Concept depth levels.
const (
	DepthAbsent  = "absent"
	DepthShallow = "shallow"
	DepthDeep    = "deep"
)

// DefaultConcepts are the architecture terms checked in every report.
var DefaultConcepts = []string{
	"Dialectical Synthesis",
	"Fan-In",
	"Fan-Out",
	"Metacognition",
	"State Synchronization",
	"parallel",
	"LangGraph",
	"StateGraph",
	"reducer",
	"operator.add",
	"operator.ior",
}

// ConceptDepth records whether a concept appears and how much surrounding
// explanation it gets.
type ConceptDepth struct {
	Found   bool   `json:"found"`
	Depth   string `json:"depth"`
	Excerpt string `json:"excerpt"`
}

// ChunkText splits text into windows of size words, each starting
// size-overlap words after the previous one.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkWords
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

var tokenRe = regexp.MustCompile(`\w+`)

func tokens(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// Query ranks chunks by the share of their tokens that occur in query and
// returns the best topK. Chunks with equal score keep document order.
func Query(chunks []string, query string, topK int) []string {
	if topK <= 0 {
		topK = DefaultTopK
	}
	want := map[string]bool{}
	for _, t := range tokens(query) {
		want[t] = true
	}
	type scored struct {
		score float64
		chunk string
	}
	var ranked []scored
	for _, c := range chunks {
		toks := tokens(c)
		if len(toks) == 0 {
			continue
		}
		seen := map[string]bool{}
		overlap := 0
		for _, t := range toks {
			if want[t] && !seen[t] {
				seen[t] = true
				overlap++
			}
		}
		ranked = append(ranked, scored{float64(overlap) / float64(len(toks)), c})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]string, 0, min(topK, len(ranked)))
	for _, r := range ranked[:min(topK, len(ranked))] {
		out = append(out, r.chunk)
	}
	return out
}

var pathRe = regexp.MustCompile(`(?:src/|\./)?\w[\w/]*\.(?:py|go|md|json|toml|txt|yaml|yml)\b`)

// FilePaths returns the distinct file paths mentioned in text, sorted.
func FilePaths(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range pathRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// AnalyzeConcepts locates the first case-insensitive occurrence of every
// concept and grades the 200 characters either side of it.
func AnalyzeConcepts(text string, concepts []string) map[string]ConceptDepth {
	runes := []rune(text)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	out := make(map[string]ConceptDepth, len(concepts))
	for _, c := range concepts {
		idx := indexRunes(lower, []rune(strings.ToLower(c)))
		if idx < 0 {
			out[c] = ConceptDepth{Depth: DepthAbsent}
			continue
		}
		start := max(0, idx-conceptWindow)
		end := min(len(runes), idx+conceptWindow)
		excerpt := strings.TrimSpace(string(runes[start:end]))
		depth := DepthShallow
		if len(strings.Fields(excerpt)) > deepConceptWords {
			depth = DepthDeep
		}
		out[c] = ConceptDepth{Found: true, Depth: depth, Excerpt: excerpt}
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

var diagramRe = regexp.MustCompile(`(?i)\b(?:diagram|figure|flowchart|mermaid)s?\b|\bfig\.|!\[`)

// DiagramMentions returns the trimmed lines of text that reference a
// diagram or embedded image, in document order.
func DiagramMentions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && diagramRe.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}
