package ir

import "fmt"

// blockIndexCounter hands out process-wide unique basic-block indices. The
// allocator is single-threaded; the counter is a plain int by design.
var blockIndexCounter int

func newBlockIndex() int {
	i := blockIndexCounter
	blockIndexCounter++
	return i
}

// BasicBlock is a straight-line run of bundles with explicit CFG edges.
type BasicBlock struct {
	// Index is unique across the process run and names the block in dumps.
	// Live-range positions use the block's place in Program.Blocks instead.
	Index int
	Label string
	// Labels lists every label bound to the block (a block can carry more
	// than one after merges).
	Labels  []string
	Bundles []*Bundle
	Preds   []*BasicBlock
	Succs   []*BasicBlock
}

func newBasicBlock(label string) *BasicBlock {
	return &BasicBlock{Index: newBlockIndex(), Label: label}
}

func (b *BasicBlock) String() string { return "BB " + b.Label }

// Empty reports whether the block holds no bundles.
func (b *BasicBlock) Empty() bool { return len(b.Bundles) == 0 }

// Fallthrough reports whether control falls off the end of the block: the
// last bundle carries no jump. An empty block trivially falls through.
func (b *BasicBlock) Fallthrough() bool {
	if len(b.Bundles) == 0 {
		return true
	}
	return !b.Bundles[len(b.Bundles)-1].HasJump()
}

// ConnectTo adds the edge b -> succ, skipping duplicates.
func (b *BasicBlock) ConnectTo(succ *BasicBlock) {
	for _, s := range b.Succs {
		if s == succ {
			return
		}
	}
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// replaceSucc rewires every edge pred -> old to pred -> repl, used when an
// empty block is merged away.
func replaceSucc(pred, old, repl *BasicBlock) {
	for i, s := range pred.Succs {
		if s == old {
			pred.Succs[i] = repl
			repl.Preds = append(repl.Preds, pred)
		}
	}
}

// Program is the CFG under construction plus the liveness boundary
// conditions declared by the PREDEFINED/POSTUSED macros.
type Program struct {
	Blocks []*BasicBlock
	Source *BasicBlock
	Sink   *BasicBlock
	// Current is the block new bundles are appended to.
	Current *BasicBlock

	PreDefined []Register
	PostUsed   []Register

	labelMap map[string]*BasicBlock
}

// NewProgram creates the source and sink blocks and an initial current block
// wired below source.
func NewProgram() *Program {
	p := &Program{labelMap: make(map[string]*BasicBlock)}
	p.Source = p.addBlock("source")
	p.Sink = p.addBlock("sink")
	p.Current = p.addBlock("undef")
	p.Source.ConnectTo(p.Current)
	return p
}

func (p *Program) addBlock(label string) *BasicBlock {
	bb := newBasicBlock(label)
	p.Blocks = append(p.Blocks, bb)
	return bb
}

func (p *Program) removeBlock(bb *BasicBlock) {
	for i, b := range p.Blocks {
		if b == bb {
			p.Blocks = append(p.Blocks[:i], p.Blocks[i+1:]...)
			return
		}
	}
}

// BlockByLabel returns the block bound to label, creating an unplaced one on
// first mention (forward jumps).
func (p *Program) BlockByLabel(label string) *BasicBlock {
	if bb, ok := p.labelMap[label]; ok {
		return bb
	}
	bb := p.addBlock(label)
	bb.Labels = append(bb.Labels, label)
	p.labelMap[label] = bb
	return bb
}

// AddBundle commits bundle to the current block. A jumping bundle ends the
// block: a fresh current block is opened, connected below the old one only
// if some jump in the bundle can fall through.
func (p *Program) AddBundle(bundle *Bundle) {
	prev := p.Current
	prev.Bundles = append(prev.Bundles, bundle)
	if !bundle.HasJump() {
		return
	}
	p.Current = p.addBlock("undef")
	if !bundle.OnlyUnconditionalJumps() {
		prev.ConnectTo(p.Current)
	}
}

// AddLabel binds label at the current program point. If a block was
// pre-created for the label by a forward jump it becomes the current block;
// an empty current block is merged into it. Defining a label twice over
// instructions is an error.
func (p *Program) AddLabel(label string) error {
	target, known := p.labelMap[label]
	if known && !target.Empty() {
		return fmt.Errorf("label %q defined twice", label)
	}

	if !p.Current.Empty() {
		// Close the current block; fall into the labelled one if its last
		// bundle does not jump.
		prev := p.Current
		if !known {
			target = p.addBlock(label)
			target.Labels = append(target.Labels, label)
			p.labelMap[label] = target
		}
		if prev.Fallthrough() {
			prev.ConnectTo(target)
		}
		p.Current = target
		return nil
	}

	if !known {
		// Bind the label to the (empty) current block.
		p.Current.Label = label
		p.Current.Labels = append(p.Current.Labels, label)
		p.labelMap[label] = p.Current
		return nil
	}

	// The current block is empty and the label was pre-created: merge the
	// current block away, rewiring its incoming edges onto the target.
	old := p.Current
	for _, pred := range old.Preds {
		replaceSucc(pred, old, target)
	}
	for _, l := range old.Labels {
		target.Labels = append(target.Labels, l)
		p.labelMap[l] = target
	}
	p.removeBlock(old)
	p.Current = target
	return nil
}

// EndProgram finishes the CFG: a non-empty current block that falls through
// is connected to sink.
func (p *Program) EndProgram() {
	if p.Current != p.Sink && !p.Current.Empty() && p.Current.Fallthrough() {
		p.Current.ConnectTo(p.Sink)
	}
}

// Reachable returns the set of blocks reachable from source, including
// source itself. Unreachable blocks take no part in liveness.
func (p *Program) Reachable() map[*BasicBlock]bool {
	seen := map[*BasicBlock]bool{p.Source: true}
	work := []*BasicBlock{p.Source}
	for len(work) > 0 {
		bb := work[len(work)-1]
		work = work[:len(work)-1]
		for _, succ := range bb.Succs {
			if !seen[succ] {
				seen[succ] = true
				work = append(work, succ)
			}
		}
	}
	return seen
}
