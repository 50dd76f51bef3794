package ir

import "fmt"

// RegFileDescription configures one register file of an architecture.
type RegFileDescription struct {
	Class       *RegClass
	NumPhysRegs int
	// ConstRegs lists canonical indices hardwired to constants.
	ConstRegs []int
	// Allocatable restricts which physical indices the allocator may hand
	// out. Nil means every non-const index is allocatable.
	Allocatable IndexConstraint
}

// RegFile owns the canonical register objects of one class: the pre-built
// physical pool and the lazily interned virtual pool.
type RegFile struct {
	desc RegFileDescription
	phys []*PhysicalRegister
	virt map[string]*VirtualRegister
	// virtOrder preserves interning order for deterministic iteration.
	virtOrder []*VirtualRegister
}

// NewRegFile pre-allocates the physical pool described by desc.
func NewRegFile(desc RegFileDescription) *RegFile {
	f := &RegFile{
		desc: desc,
		phys: make([]*PhysicalRegister, desc.NumPhysRegs),
		virt: make(map[string]*VirtualRegister),
	}
	constSet := make(map[int]bool, len(desc.ConstRegs))
	for _, i := range desc.ConstRegs {
		constSet[i] = true
	}
	for i := range f.phys {
		f.phys[i] = &PhysicalRegister{class: desc.Class, index: i, constReg: constSet[i]}
	}
	return f
}

// Class returns the class this file holds registers of.
func (f *RegFile) Class() *RegClass { return f.desc.Class }

// NumPhysRegs returns the size of the physical pool.
func (f *RegFile) NumPhysRegs() int { return f.desc.NumPhysRegs }

// Allocatable reports whether the allocator may assign index i.
func (f *RegFile) Allocatable(i int) bool {
	if i < 0 || i >= f.desc.NumPhysRegs {
		return false
	}
	if f.phys[i].Const() {
		return false
	}
	if f.desc.Allocatable != nil {
		return f.desc.Allocatable(i)
	}
	return true
}

// PhysReg resolves a textual specifier and index to the canonical physical
// register, wrapping it in an alias object when the spelling is not
// canonical. spec is "" for the canonical spelling.
func (f *RegFile) PhysReg(spec string, index int) (Register, error) {
	canonical := index
	isAlias := false
	if f.desc.Class.ResolveAlias != nil {
		var err error
		isAlias, canonical, err = f.desc.Class.ResolveAlias(spec, index)
		if err != nil {
			return nil, err
		}
	}
	if canonical < 0 || canonical >= f.desc.NumPhysRegs {
		return nil, fmt.Errorf("register file %s has %d register(s), request for index %d",
			f.desc.Class.Name, f.desc.NumPhysRegs, canonical)
	}
	phys := f.phys[canonical]
	if isAlias {
		return &PhysicalRegisterAlias{phys: phys, spec: spec, index: index}, nil
	}
	return phys, nil
}

// VirtReg interns the virtual register named name. The constraint applies
// only on first mention; later mentions return the canonical object as is.
func (f *RegFile) VirtReg(name string, constraint IndexConstraint) *VirtualRegister {
	if reg, ok := f.virt[name]; ok {
		return reg
	}
	if constraint == nil {
		constraint = NoConstraint
	}
	reg := &VirtualRegister{name: name, class: f.desc.Class, constraint: constraint}
	f.virt[name] = reg
	f.virtOrder = append(f.virtOrder, reg)
	return reg
}

// VirtRegs returns the interned virtual registers in interning order.
func (f *RegFile) VirtRegs() []*VirtualRegister { return f.virtOrder }

// SpecialFile is the symbolic register file: it has no physical indices and
// interns one SpecialRegister per tag, bypassing the index bound check.
type SpecialFile struct {
	class *RegClass
	pool  map[string]*SpecialRegister
}

// NewSpecialFile builds an empty symbolic file for class.
func NewSpecialFile(class *RegClass) *SpecialFile {
	return &SpecialFile{class: class, pool: make(map[string]*SpecialRegister)}
}

// Reg interns the special register named tag.
func (f *SpecialFile) Reg(tag string) *SpecialRegister {
	if reg, ok := f.pool[tag]; ok {
		return reg
	}
	reg := &SpecialRegister{tag: tag, class: f.class}
	f.pool[tag] = reg
	return reg
}
