package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/asmkit/asmalloc"
	"github.com/asmkit/asmalloc/pkg/archs"
	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
	"github.com/asmkit/asmalloc/pkg/parser"
	"github.com/asmkit/asmalloc/pkg/stats"
)

var root = &cobra.Command{
	Use:          "asmalloc",
	Short:        "Assembly-level register allocator and opcode statistics",
	SilenceUsage: true,
}

func main() {
	root.AddCommand(
		allocCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func panicOnError(err error) {
	if err != nil {
		panic(err)
	}
}

var (
	flagArch          string
	flagOutput        string
	flagAsmDump       bool
	flagVerbose       bool
	flagVerboseLexer  bool
	flagVerboseParser bool
)

var (
	flagMode           string
	flagAllowError     int
	flagVerbosePattern bool
	flagAllOpcodes     bool
	flagCSV            bool
)

func allocCmd() *cobra.Command {
	alloc := &cobra.Command{
		Use:   "alloc {input} [--arch=name] [--output=path] [-S]",
		Short: "Allocate physical registers for the virtual registers of an assembly file",
		Args:  cobra.ExactArgs(1),
		RunE:  runAlloc,
	}

	fs := alloc.Flags()
	fs.StringVar(&flagArch, "arch", "dummy", "Target architecture spec (e.g. dummy, dummy:std=8, rv32:int=16)")
	fs.StringVar(&flagOutput, "output", "", "Output path (default stdout)")
	panicOnError(alloc.MarkFlagFilename("output"))
	fs.BoolVarP(&flagAsmDump, "asm-dump", "S", false, "Emit the fully rendered assembly listing instead of #define lines")
	fs.BoolVar(&flagVerbose, "verbose", false, "Enable general debug/info message display")
	fs.BoolVar(&flagVerboseLexer, "lexer-verbose", false, "Enable lexer debug message display")
	fs.BoolVar(&flagVerboseParser, "parser-verbose", false, "Enable parser debug message display")

	return alloc
}

func runAlloc(cmd *cobra.Command, args []string) error {
	arch, err := archs.New(flagArch)
	if err != nil {
		return err
	}

	prog := ir.NewProgram()
	asmParser := parser.New(arch, prog)
	if flagVerboseParser {
		asmParser.SetVerbose(os.Stderr)
	}

	if err := feedFile(args[0], func(tokens []lexer.Token, dbg ir.DebugInfo) error {
		return asmParser.ParseAsmLine(tokens, dbg)
	}); err != nil {
		return err
	}
	asmParser.EndProgram()

	if flagVerbose {
		fmt.Fprintln(os.Stderr, "=== Parsed program ===")
		spew.Fdump(os.Stderr, programSummary(prog))
	}

	assignator := asmalloc.NewAssignator(arch)
	if flagVerbose {
		assignator.SetVerbose(os.Stderr)
	}
	coloring, err := assignator.Allocate(prog)
	if err != nil {
		return err
	}

	return withOutput(flagOutput, func(w io.Writer) error {
		if flagAsmDump {
			return asmalloc.RenderProgram(arch, prog, coloring, w)
		}
		return asmalloc.DumpAllocation(arch, coloring, w)
	})
}

func statsCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "stats {inputs...} [--arch=name] [--mode=asm|objdump|trace]",
		Short: "Accumulate per-opcode statistics over assembly listings, objdump output or traces",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStats,
	}

	fs := st.Flags()
	fs.StringVar(&flagArch, "arch", "dummy", "Target architecture spec")
	fs.StringVar(&flagOutput, "output", "", "Output path (default stdout)")
	panicOnError(st.MarkFlagFilename("output"))
	fs.StringVar(&flagMode, "mode", "asm", "Assembly parsing mode: asm, objdump or trace")
	fs.IntVar(&flagAllowError, "allow-error", 0, "Number of accepted parse errors before stopping")
	fs.BoolVar(&flagVerbosePattern, "verbose-pattern", false, "Distinguish instructions by verbose match pattern")
	fs.BoolVar(&flagAllOpcodes, "display-all-opcodes", false, "Also display zero counts for absent opcodes")
	fs.BoolVar(&flagCSV, "csv", false, "Output in CSV format")
	fs.BoolVar(&flagVerboseLexer, "lexer-verbose", false, "Enable lexer debug message display")

	return st
}

func runStats(cmd *cobra.Command, args []string) error {
	global := make(map[string]map[string]int)
	errorCount := 0

	for _, input := range args {
		arch, err := archs.New(flagArch)
		if err != nil {
			return err
		}
		prog := ir.NewProgram()
		asmParser := parser.New(arch, prog)

		err = feedFile(input, func(tokens []lexer.Token, dbg ir.DebugInfo) error {
			var parseErr error
			switch flagMode {
			case "objdump":
				parseErr = asmParser.ParseObjdumpLine(tokens, dbg)
			case "trace":
				parseErr = asmParser.ParseTraceLine(tokens, dbg)
			case "asm":
				parseErr = asmParser.ParseAsmLine(tokens, dbg)
			default:
				return fmt.Errorf("unknown parsing mode %q", flagMode)
			}
			if parseErr != nil {
				errorCount++
				if errorCount > flagAllowError {
					return parseErr
				}
				fmt.Fprintf(os.Stderr, "error @%s: %v\n", dbg, parseErr)
			}
			return nil
		})
		if err != nil {
			return err
		}
		asmParser.EndProgram()

		programStats := stats.New(arch, input)
		programStats.Analyze(prog, flagVerbosePattern)
		programStats.FuseIn(global, flagAllOpcodes)
	}

	return withOutput(flagOutput, func(w io.Writer) error {
		return stats.DumpFused(w, global, args, flagCSV)
	})
}

// feedFile lexes input line by line and hands each token list to fn with its
// debug position.
func feedFile(path string, fn func([]lexer.Token, ir.DebugInfo) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := scan.Text()
		if flagMode == "objdump" && strings.Contains(line, "file format") {
			continue
		}
		tokens := lexer.LexLine(line)
		if flagVerboseLexer {
			fmt.Fprintf(os.Stderr, "%d: %v\n", lineNo, tokens)
		}
		if err := fn(tokens, ir.DebugInfo{File: path, Line: lineNo}); err != nil {
			return err
		}
	}
	return scan.Err()
}

func withOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	return fn(f)
}

func programSummary(prog *ir.Program) map[string][]string {
	summary := make(map[string][]string, len(prog.Blocks))
	for _, bb := range prog.Blocks {
		var insns []string
		for _, bundle := range bb.Bundles {
			for _, insn := range bundle.Insns {
				insns = append(insns, insn.Opcode)
			}
		}
		summary[fmt.Sprintf("%s#%d", bb.Label, bb.Index)] = insns
	}
	return summary
}
