// Package stats accumulates per-opcode usage counts over parsed programs,
// optionally keyed by which pattern alternative matched each instruction.
package stats

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/asmkit/asmalloc/pkg/ir"
)

// ProgramStatistics counts opcode occurrences of one program.
type ProgramStatistics struct {
	arch   *ir.Architecture
	name   string
	counts map[string]int
}

// New builds an empty accumulator for the program named name.
func New(arch *ir.Architecture, name string) *ProgramStatistics {
	return &ProgramStatistics{arch: arch, name: name, counts: make(map[string]int)}
}

// Analyze walks every instruction of prog. With verbose set, match-pattern
// keys include the matched literal ("add-imm 11" instead of "add-imm").
func (s *ProgramStatistics) Analyze(prog *ir.Program, verbose bool) {
	for _, bb := range prog.Blocks {
		for _, bundle := range bb.Bundles {
			for _, insn := range bundle.Insns {
				key := insn.Opcode
				if insn.Match != nil {
					key += "-" + insn.Match.Dump(verbose)
				}
				s.counts[key]++
			}
		}
	}
}

// Count returns the accumulated count for key.
func (s *ProgramStatistics) Count(key string) int { return s.counts[key] }

func (s *ProgramStatistics) keys(exhaustive bool) []string {
	keys := maps.Keys(s.counts)
	if exhaustive {
		for _, opc := range s.arch.AllOpcodes() {
			if _, ok := s.counts[opc]; !ok {
				keys = append(keys, opc)
			}
		}
	}
	// Ascending count, ties by name, so the hottest opcodes end the listing.
	slices.SortFunc(keys, func(a, b string) bool {
		if s.counts[a] != s.counts[b] {
			return s.counts[a] < s.counts[b]
		}
		return a < b
	})
	return keys
}

// Dump writes the counts. With exhaustive set, mnemonics the program never
// used appear with count zero.
func (s *ProgramStatistics) Dump(w io.Writer, exhaustive, csvFormat bool) error {
	if _, err := fmt.Fprintln(w, "# Program statistics"); err != nil {
		return err
	}
	for _, key := range s.keys(exhaustive) {
		var err error
		if csvFormat {
			_, err = fmt.Fprintf(w, "%s, %d\n", key, s.counts[key])
		} else {
			_, err = fmt.Fprintf(w, "%5d %-15s\n", s.counts[key], key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// FuseIn merges this program's counts into a cross-program table keyed by
// opcode then program name.
func (s *ProgramStatistics) FuseIn(global map[string]map[string]int, exhaustive bool) {
	for _, key := range s.keys(exhaustive) {
		if global[key] == nil {
			global[key] = make(map[string]int)
		}
		global[key][s.name] = s.counts[key]
	}
}

// DumpFused writes the cross-program table built by FuseIn.
func DumpFused(w io.Writer, global map[string]map[string]int, programs []string, csvFormat bool) error {
	opcodes := maps.Keys(global)
	slices.Sort(opcodes)
	if csvFormat {
		if _, err := fmt.Fprintf(w, "opcode, %s\n", strings.Join(programs, ", ")); err != nil {
			return err
		}
	}
	for _, opc := range opcodes {
		if csvFormat {
			if _, err := fmt.Fprintf(w, "%s", opc); err != nil {
				return err
			}
			for _, name := range programs {
				if _, err := fmt.Fprintf(w, ", %d", global[opc][name]); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
			continue
		}
		for _, name := range programs {
			if _, err := fmt.Fprintf(w, "%5d %-15s %s\n", global[opc][name], opc, name); err != nil {
				return err
			}
		}
	}
	return nil
}
