package investigate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// Signal names produced by the repository scan. Rubric dimensions refer to
// them by name; a leading "!" in a rubric signal means "must be absent".
const (
	SignalGraphConstruction = "graph_construction"
	SignalParallelFanOut    = "parallel_fan_out"
	SignalAggregatorNode    = "aggregator_node"
	SignalTypedState        = "typed_state"
	SignalReducers          = "reducers"
	SignalTempSandbox       = "temp_sandbox"
	SignalStructuredOutput  = "structured_output"
	SignalShellExec         = "shell_exec"
	SignalPersonaSeparation = "persona_separation"
	SignalSynthesisNode     = "synthesis_node"
	SignalAtomicHistory     = "atomic_history"
)

// fanOutEdges is the edge-call count at which a graph counts as fanning out.
const fanOutEdges = 4

const maxSourceBytes = 1 << 20

// Finding is one located observation in a source file.
type Finding struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (f Finding) String() string { return fmt.Sprintf("%s:%d", f.Path, f.Line) }

// CodeFacts is the structural summary of a repository's source.
type CodeFacts struct {
	FilesParsed       int       `json:"files_parsed"`
	GraphConstruction []Finding `json:"graph_construction,omitempty"`
	EdgeCalls         []Finding `json:"edge_calls,omitempty"`
	AggregatorNode    []Finding `json:"aggregator_node,omitempty"`
	TypedState        []Finding `json:"typed_state,omitempty"`
	Reducers          []Finding `json:"reducers,omitempty"`
	TempSandbox       []Finding `json:"temp_sandbox,omitempty"`
	StructuredOutput  []Finding `json:"structured_output,omitempty"`
	ShellExec         []Finding `json:"shell_exec,omitempty"`
	Concurrency       []Finding `json:"concurrency,omitempty"`
	Synthesis         []Finding `json:"synthesis,omitempty"`
	Personas          []string  `json:"personas,omitempty"`
	Errors            []string  `json:"errors,omitempty"`
}

// Signal reports whether the named scan signal fired.
func (c CodeFacts) Signal(name string) (bool, []Finding) {
	switch name {
	case SignalGraphConstruction:
		return len(c.GraphConstruction) > 0, c.GraphConstruction
	case SignalParallelFanOut:
		fired := len(c.EdgeCalls) >= fanOutEdges || len(c.Concurrency) > 0
		return fired, append(append([]Finding(nil), c.EdgeCalls...), c.Concurrency...)
	case SignalAggregatorNode:
		return len(c.AggregatorNode) > 0, c.AggregatorNode
	case SignalTypedState:
		return len(c.TypedState) > 0, c.TypedState
	case SignalReducers:
		return len(c.Reducers) > 0, c.Reducers
	case SignalTempSandbox:
		return len(c.TempSandbox) > 0, c.TempSandbox
	case SignalStructuredOutput:
		return len(c.StructuredOutput) > 0, c.StructuredOutput
	case SignalShellExec:
		return len(c.ShellExec) > 0, c.ShellExec
	case SignalSynthesisNode:
		return len(c.Synthesis) > 0, c.Synthesis
	case SignalPersonaSeparation:
		return len(c.Personas) >= 2, nil
	}
	return false, nil
}

// CodeScanner parses Python and Go sources with tree-sitter.
type CodeScanner struct {
	py     *sitter.Language
	goLang *sitter.Language
}

// NewCodeScanner returns a scanner for Python and Go.
func NewCodeScanner() *CodeScanner {
	return &CodeScanner{py: python.GetLanguage(), goLang: golang.GetLanguage()}
}

// Scan parses every .py and .go file in files (relative to root).
func (s *CodeScanner) Scan(ctx context.Context, root string, files []string) CodeFacts {
	var facts CodeFacts
	personas := map[string]bool{}
	for _, rel := range files {
		if ctx.Err() != nil {
			facts.Errors = append(facts.Errors, ctx.Err().Error())
			break
		}
		var lang *sitter.Language
		var visit func(*scanFile, *sitter.Node)
		switch filepath.Ext(rel) {
		case ".py":
			lang, visit = s.py, visitPython
		case ".go":
			lang, visit = s.goLang, visitGo
		default:
			continue
		}
		src, err := readSource(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			facts.Errors = append(facts.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		parser := sitter.NewParser()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			facts.Errors = append(facts.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		sf := &scanFile{path: rel, src: src, facts: &facts}
		if tree.RootNode().HasError() {
			facts.Errors = append(facts.Errors, fmt.Sprintf("%s: syntax error", rel))
		}
		visit(sf, tree.RootNode())
		tree.Close()
		facts.FilesParsed++

		lower := strings.ToLower(string(src))
		for tag, words := range personaWords {
			for _, w := range words {
				if strings.Contains(lower, w) {
					personas[tag] = true
				}
			}
		}
	}
	for _, tag := range []string{"adversarial", "generous", "pragmatic"} {
		if personas[tag] {
			facts.Personas = append(facts.Personas, tag)
		}
	}
	return facts
}

var personaWords = map[string][]string{
	"adversarial": {"prosecutor", "adversarial"},
	"generous":    {"defense", "defence", "generous"},
	"pragmatic":   {"tech lead", "techlead", "tech_lead", "pragmatic"},
}

func readSource(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSourceBytes {
		return nil, fmt.Errorf("file larger than %d bytes", maxSourceBytes)
	}
	return os.ReadFile(path)
}

type scanFile struct {
	path  string
	src   []byte
	facts *CodeFacts
}

func (f *scanFile) text(n *sitter.Node) string { return n.Content(f.src) }

func (f *scanFile) at(n *sitter.Node) Finding {
	text := strings.Join(strings.Fields(f.text(n)), " ")
	if r := []rune(text); len(r) > 120 {
		text = string(r[:120])
	}
	return Finding{Path: f.path, Line: int(n.StartPoint().Row) + 1, Text: text}
}

// walk visits n and all named descendants, depth first.
func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func visitPython(f *scanFile, root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "call":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return
			}
			name := f.text(fn)
			switch last := lastSegment(name); {
			case last == "StateGraph":
				f.facts.GraphConstruction = append(f.facts.GraphConstruction, f.at(n))
			case last == "add_edge" || last == "add_conditional_edges":
				f.facts.EdgeCalls = append(f.facts.EdgeCalls, f.at(n))
			case last == "with_structured_output" || last == "bind_tools":
				f.facts.StructuredOutput = append(f.facts.StructuredOutput, f.at(n))
			case name == "os.system" || name == "os.popen":
				f.facts.ShellExec = append(f.facts.ShellExec, f.at(n))
			case strings.HasPrefix(name, "tempfile."):
				f.facts.TempSandbox = append(f.facts.TempSandbox, f.at(n))
			case last == "ThreadPoolExecutor" || last == "gather" || last == "Send":
				f.facts.Concurrency = append(f.facts.Concurrency, f.at(n))
			}
			if args := n.ChildByFieldName("arguments"); args != nil && strings.HasPrefix(name, "subprocess.") {
				for i := 0; i < int(args.NamedChildCount()); i++ {
					a := args.NamedChild(i)
					if a.Type() == "keyword_argument" && strings.ReplaceAll(f.text(a), " ", "") == "shell=True" {
						f.facts.ShellExec = append(f.facts.ShellExec, f.at(n))
					}
				}
			}
		case "class_definition":
			if sup := n.ChildByFieldName("superclasses"); sup != nil {
				bases := f.text(sup)
				if strings.Contains(bases, "BaseModel") || strings.Contains(bases, "TypedDict") {
					f.facts.TypedState = append(f.facts.TypedState, f.at(n))
				}
			}
		case "attribute":
			switch f.text(n) {
			case "operator.add", "operator.ior":
				f.facts.Reducers = append(f.facts.Reducers, f.at(n))
			}
		case "function_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				id := strings.ToLower(f.text(name))
				if strings.Contains(id, "aggregat") {
					f.facts.AggregatorNode = append(f.facts.AggregatorNode, f.at(name))
				}
				if strings.Contains(id, "chief_justice") || strings.Contains(id, "synthes") {
					f.facts.Synthesis = append(f.facts.Synthesis, f.at(name))
				}
			}
		case "string":
			if strings.Contains(strings.ToLower(f.text(n)), "aggregator") {
				f.facts.AggregatorNode = append(f.facts.AggregatorNode, f.at(n))
			}
		}
	})
}

func visitGo(f *scanFile, root *sitter.Node) {
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return
			}
			name := f.text(fn)
			switch last := lastSegment(name); last {
			case "NewGraph", "NewStateGraph", "NewFanOut":
				f.facts.GraphConstruction = append(f.facts.GraphConstruction, f.at(n))
			case "AddEdge", "AddConditionalEdges", "AddEdges":
				f.facts.EdgeCalls = append(f.facts.EdgeCalls, f.at(n))
			case "MkdirTemp", "TempDir", "CreateTemp":
				f.facts.TempSandbox = append(f.facts.TempSandbox, f.at(n))
			case "WithContext", "SetLimit":
				if strings.HasPrefix(name, "errgroup.") || last == "SetLimit" {
					f.facts.Concurrency = append(f.facts.Concurrency, f.at(n))
				}
			case "Command", "CommandContext":
				if strings.HasPrefix(name, "exec.") && goShellArgs(f, n) {
					f.facts.ShellExec = append(f.facts.ShellExec, f.at(n))
				}
			case "Unmarshal", "Validate":
				if strings.Contains(f.text(n), "Schema") {
					f.facts.StructuredOutput = append(f.facts.StructuredOutput, f.at(n))
				}
			}
		case "keyed_element":
			if strings.HasPrefix(strings.TrimSpace(f.text(n)), "ResponseSchema") {
				f.facts.StructuredOutput = append(f.facts.StructuredOutput, f.at(n))
			}
		case "type_spec":
			name, typ := n.ChildByFieldName("name"), n.ChildByFieldName("type")
			if name != nil && typ != nil && typ.Type() == "struct_type" && strings.Contains(f.text(name), "State") {
				f.facts.TypedState = append(f.facts.TypedState, f.at(n))
			}
		case "function_declaration", "method_declaration":
			name := n.ChildByFieldName("name")
			if name == nil {
				return
			}
			id := f.text(name)
			lower := strings.ToLower(id)
			switch {
			case strings.HasPrefix(id, "Merge") || strings.HasPrefix(id, "Append") || strings.HasPrefix(id, "Reduce"):
				f.facts.Reducers = append(f.facts.Reducers, f.at(name))
			case strings.Contains(lower, "aggregat") || strings.Contains(lower, "join"):
				f.facts.AggregatorNode = append(f.facts.AggregatorNode, f.at(name))
			case strings.Contains(lower, "resolve") || strings.Contains(lower, "synthes"):
				f.facts.Synthesis = append(f.facts.Synthesis, f.at(name))
			}
		case "go_statement":
			f.facts.Concurrency = append(f.facts.Concurrency, f.at(n))
		}
	})
}

// goShellArgs reports whether an exec.Command call starts a shell with -c.
func goShellArgs(f *scanFile, call *sitter.Node) bool {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	var shell, dashC bool
	for i := 0; i < int(args.NamedChildCount()); i++ {
		lit := strings.Trim(f.text(args.NamedChild(i)), "\"`")
		switch lit {
		case "sh", "bash", "/bin/sh", "/bin/bash", "zsh":
			shell = true
		case "-c":
			dashC = true
		}
	}
	return shell && dashC
}
