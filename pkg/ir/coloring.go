package ir

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Coloring maps registers to physical indices, per class. Physical registers
// are pre-colored with their own index; virtual registers receive theirs
// from the allocator.
type Coloring struct {
	perClass map[*RegClass]map[Register]int
	// order keeps per-class assignment order for deterministic dumps.
	order map[*RegClass][]Register
}

// NewColoring returns an empty coloring.
func NewColoring() *Coloring {
	return &Coloring{
		perClass: make(map[*RegClass]map[Register]int),
		order:    make(map[*RegClass][]Register),
	}
}

// Set records reg's physical index.
func (c *Coloring) Set(reg Register, index int) {
	class := reg.Class()
	m, ok := c.perClass[class]
	if !ok {
		m = make(map[Register]int)
		c.perClass[class] = m
	}
	if _, seen := m[reg]; !seen {
		c.order[class] = append(c.order[class], reg)
	}
	m[reg] = index
}

// Unset removes reg's assignment (backtracking).
func (c *Coloring) Unset(reg Register) {
	class := reg.Class()
	m, ok := c.perClass[class]
	if !ok {
		return
	}
	if _, seen := m[reg]; !seen {
		return
	}
	delete(m, reg)
	regs := c.order[class]
	for i, r := range regs {
		if r == reg {
			c.order[class] = append(regs[:i], regs[i+1:]...)
			break
		}
	}
}

// Index returns reg's assigned physical index.
func (c *Coloring) Index(reg Register) (int, bool) {
	i, ok := c.perClass[reg.Class()][reg.Base()]
	return i, ok
}

// Assigned returns the registers of class in assignment order.
func (c *Coloring) Assigned(class *RegClass) []Register {
	return c.order[class]
}

// AssignedVirtual returns the colored virtual registers of class sorted by
// name, the order the allocation dump uses.
func (c *Coloring) AssignedVirtual(class *RegClass) []*VirtualRegister {
	var out []*VirtualRegister
	for _, reg := range c.order[class] {
		if v, ok := reg.(*VirtualRegister); ok {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b *VirtualRegister) bool { return a.Name() < b.Name() })
	return out
}

// Op renders operand op under the coloring: immediates and special registers
// as written, physical registers and aliases in their own spelling, virtual
// registers as the physical register they were assigned.
func (c *Coloring) Op(op Operand) string {
	v, ok := op.(*VirtualRegister)
	if !ok {
		return op.String()
	}
	index, colored := c.Index(v)
	if !colored {
		return v.String()
	}
	return v.Class().PhysString(index)
}

// Multi renders a compound register formed by ops, e.g. "$r6r7" for a dual
// pair. All operands must be registers of the same class.
func (c *Coloring) Multi(ops []Operand) string {
	if len(ops) == 0 {
		return ""
	}
	class := ops[0].(Register).Class()
	var b strings.Builder
	b.WriteString(class.Prefix)
	for _, op := range ops {
		reg := op.(Register)
		switch r := reg.(type) {
		case *VirtualRegister:
			if index, ok := c.Index(r); ok {
				fmt.Fprintf(&b, "%s%d", class.RegPrefix, index)
			} else {
				fmt.Fprintf(&b, "%s<%s>", class.RegPrefix, r.Name())
			}
		case *PhysicalRegister:
			fmt.Fprintf(&b, "%s%d", class.RegPrefix, r.Index())
		case *PhysicalRegisterAlias:
			if p, ok := r.Base().(*PhysicalRegister); ok {
				fmt.Fprintf(&b, "%s%d", class.RegPrefix, p.Index())
			}
		}
	}
	return b.String()
}
