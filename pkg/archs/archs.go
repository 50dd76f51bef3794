// Package archs resolves architecture spec strings to constructed
// architectures. A spec is a registry name optionally followed by register
// file sizing parameters: "dummy", "dummy:std=8", "rv32:int=16,fp=8".
package archs

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/asmkit/asmalloc/pkg/archs/dummy"
	"github.com/asmkit/asmalloc/pkg/archs/rv32"
	"github.com/asmkit/asmalloc/pkg/ir"
)

// Spec is the parsed form of an architecture spec string.
type Spec struct {
	Name   string  `parser:"@Ident"`
	Params []Param `parser:"( ':' @@ ( ',' @@ )* )?"`
}

// Param is one key=value sizing parameter.
type Param struct {
	Key   string `parser:"@Ident"`
	Value int    `parser:"'=' @Int"`
}

var specParser = participle.MustBuild[Spec]()

// Constructor builds an architecture from its sizing parameters.
type Constructor func(params map[string]int) (*ir.Architecture, error)

var registry = map[string]Constructor{
	"dummy": dummy.New,
	"rv32":  rv32.New,
}

// Names returns the registered architecture names, sorted.
func Names() []string {
	names := maps.Keys(registry)
	slices.Sort(names)
	return names
}

// New parses spec and constructs the named architecture.
func New(spec string) (*ir.Architecture, error) {
	parsed, err := specParser.ParseString("", spec)
	if err != nil {
		return nil, fmt.Errorf("invalid architecture spec %q: %w", spec, err)
	}
	ctor, ok := registry[parsed.Name]
	if !ok {
		return nil, fmt.Errorf("unknown architecture %q (known: %v)", parsed.Name, Names())
	}
	params := make(map[string]int, len(parsed.Params))
	for _, p := range parsed.Params {
		params[p.Key] = p.Value
	}
	return ctor(params)
}
