// Package ir holds the typed instruction representation the parser lowers
// assembly into, and the register universe it draws operands from: register
// classes, register files, the architecture description, and the coloring
// produced by the allocator.
package ir

import (
	"fmt"
	"strings"
)

// RegClass describes one register class of an architecture. Classes are
// compared by pointer identity; the set of classes is fixed when the
// Architecture is built.
type RegClass struct {
	// Name tags the class in diagnostics ("Std", "Acc", "Int", ...).
	Name string
	// Prefix and RegPrefix compose the textual form of a physical register,
	// e.g. "$" + "r" + "5".
	Prefix    string
	RegPrefix string
	// ResolveAlias maps a textual specifier and index to (isAlias, canonical
	// physical index). A nil ResolveAlias means the class has no alias names
	// and indices are canonical as written.
	ResolveAlias func(spec string, index int) (bool, int, error)
}

// PhysString renders the canonical textual form of physical index i.
func (c *RegClass) PhysString(i int) string {
	return fmt.Sprintf("%s%s%d", c.Prefix, c.RegPrefix, i)
}

// VirtString renders the placeholder form of a virtual register name.
func (c *RegClass) VirtString(name string) string {
	return fmt.Sprintf("%s%s<%s>", c.Prefix, c.RegPrefix, name)
}

// Operand is anything that can appear in an instruction's use or def list:
// a Register, an ImmediateValue or a SymbolRef.
type Operand interface {
	fmt.Stringer
	operand()
}

// ImmediateValue is a numeric operand. It is ignored by liveness.
type ImmediateValue struct {
	Value int64
}

func (i *ImmediateValue) operand() {}

func (i *ImmediateValue) String() string {
	return fmt.Sprintf("%d", i.Value)
}

// SymbolRef is a linker relocation operand (%hi(sym) / %lo(sym)). It is
// carried through for rendering and ignored by liveness.
type SymbolRef struct {
	Text string
}

func (s *SymbolRef) operand() {}

func (s *SymbolRef) String() string { return s.Text }

// Register is the common interface of the four register variants: physical,
// physical alias, virtual and special. Liveness and interference always
// operate on Base(); rendering keeps the variant's own textual form.
type Register interface {
	Operand
	Class() *RegClass
	// Base returns the canonical register this register stands for. For
	// aliases that is the underlying physical register, for every other
	// variant the receiver itself.
	Base() Register
	IsVirtual() bool
	IsSpecial() bool
}

// PhysicalRegister is one canonical register of a register file. There is
// exactly one object per (class, index), shared by all aliases.
type PhysicalRegister struct {
	class *RegClass
	index int
	// constReg marks registers hardwired to a constant (e.g. rv32 zero);
	// such registers may be alive at program entry without being declared
	// pre-defined.
	constReg bool
}

func (r *PhysicalRegister) operand()        {}
func (r *PhysicalRegister) Class() *RegClass { return r.class }
func (r *PhysicalRegister) Base() Register   { return r }
func (r *PhysicalRegister) IsVirtual() bool  { return false }
func (r *PhysicalRegister) IsSpecial() bool  { return false }

// Index is the canonical index of the register inside its file.
func (r *PhysicalRegister) Index() int { return r.index }

// Const reports whether the register holds a hardwired constant.
func (r *PhysicalRegister) Const() bool { return r.constReg }

func (r *PhysicalRegister) String() string {
	return r.class.PhysString(r.index)
}

// PhysicalRegisterAlias wraps a PhysicalRegister under a secondary textual
// name (e.g. rv32 "a0" for "x10"). It is created lazily on first mention and
// flattens to its base for liveness and interference.
type PhysicalRegisterAlias struct {
	phys *PhysicalRegister
	// spec and index are the textual specifier and index as written, kept
	// for rendering.
	spec  string
	index int
}

func (r *PhysicalRegisterAlias) operand()         {}
func (r *PhysicalRegisterAlias) Class() *RegClass { return r.phys.class }
func (r *PhysicalRegisterAlias) Base() Register   { return r.phys }
func (r *PhysicalRegisterAlias) IsVirtual() bool  { return false }
func (r *PhysicalRegisterAlias) IsSpecial() bool  { return false }

func (r *PhysicalRegisterAlias) String() string {
	if r.index < 0 {
		return r.phys.class.Prefix + r.spec
	}
	return fmt.Sprintf("%s%s%d", r.phys.class.Prefix, r.spec, r.index)
}

// IndexConstraint restricts the physical indices a virtual register may be
// assigned.
type IndexConstraint func(index int) bool

// NoConstraint accepts every index.
func NoConstraint(int) bool { return true }

// EvenIndex accepts even indices, OddIndex odd ones. They encode the parity
// halves of a dual-register pair.
func EvenIndex(index int) bool { return index%2 == 0 }

// OddIndex accepts odd indices.
func OddIndex(index int) bool { return index%2 == 1 }

// ModuloIndex builds the constraint index % modulo == value, used for
// quad-register groups.
func ModuloIndex(modulo, value int) IndexConstraint {
	return func(index int) bool { return index%modulo == value }
}

// IndexGenerator enumerates the physical indices permitted for a register
// given the coloring already chosen for a linked register.
type IndexGenerator func(c *Coloring) []int

// LinkedReg is one entry of a virtual register's linkage list.
type LinkedReg struct {
	Reg     *VirtualRegister
	Indices IndexGenerator
}

// VirtualRegister is a named placeholder to be assigned a physical index.
// One canonical object exists per (class, name).
type VirtualRegister struct {
	name       string
	class      *RegClass
	constraint IndexConstraint
	// linked holds cross-register constraints in insertion order so that
	// allocation never depends on map iteration order.
	linked []LinkedReg
}

func (r *VirtualRegister) operand()         {}
func (r *VirtualRegister) Class() *RegClass { return r.class }
func (r *VirtualRegister) Base() Register   { return r }
func (r *VirtualRegister) IsVirtual() bool  { return true }
func (r *VirtualRegister) IsSpecial() bool  { return false }

// Name returns the symbolic name the register was declared under.
func (r *VirtualRegister) Name() string { return r.name }

// Constraint returns the per-register index predicate.
func (r *VirtualRegister) Constraint() IndexConstraint { return r.constraint }

// Linked returns the linkage list in insertion order.
func (r *VirtualRegister) Linked() []LinkedReg { return r.linked }

// AddLinked installs a cross-register constraint. A second entry for the
// same register replaces the first.
func (r *VirtualRegister) AddLinked(reg *VirtualRegister, gen IndexGenerator) {
	for i, l := range r.linked {
		if l.Reg == reg {
			r.linked[i].Indices = gen
			return
		}
	}
	r.linked = append(r.linked, LinkedReg{Reg: reg, Indices: gen})
}

func (r *VirtualRegister) String() string {
	return r.class.VirtString(r.name)
}

// SpecialRegister is a member of a symbolic register file (no physical
// indices); it participates in parsing and rendering but is never colored.
type SpecialRegister struct {
	tag   string
	class *RegClass
}

func (r *SpecialRegister) operand()         {}
func (r *SpecialRegister) Class() *RegClass { return r.class }
func (r *SpecialRegister) Base() Register   { return r }
func (r *SpecialRegister) IsVirtual() bool  { return false }
func (r *SpecialRegister) IsSpecial() bool  { return true }

// Tag returns the symbolic name of the register.
func (r *SpecialRegister) Tag() string { return r.tag }

func (r *SpecialRegister) String() string {
	return r.class.Prefix + r.tag
}

// SortKey gives registers a total textual order that is stable across runs,
// used wherever a register set must be iterated deterministically.
func SortKey(r Register) string {
	var b strings.Builder
	b.WriteString(r.Class().Name)
	b.WriteByte('/')
	switch reg := r.(type) {
	case *PhysicalRegister:
		fmt.Fprintf(&b, "p%06d", reg.Index())
	case *PhysicalRegisterAlias:
		fmt.Fprintf(&b, "p%06d", reg.phys.Index())
	case *VirtualRegister:
		b.WriteString("v")
		b.WriteString(reg.Name())
	case *SpecialRegister:
		b.WriteString("s")
		b.WriteString(reg.Tag())
	}
	return b.String()
}
