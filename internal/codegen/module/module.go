// Package module defines the read-only view the codegen pipeline consumes
// from the bytecode module loader (spec.md §1, §6 "Inputs consumed from
// the module loader"). The loader and on-disk validation themselves are an
// out-of-scope external collaborator; this package only models the shape
// of what it hands to the compiler, plus a minimal in-memory Builder so
// the pipeline can be exercised without a real loader.
package module

// Externality classifies where a symbol's implementation lives.
type Externality uint8

const (
	ExternalityC Externality = iota
	ExternalitySDVM
)

// SymbolKind classifies what a symbol table entry names.
type SymbolKind uint8

const (
	SymbolKindFunction SymbolKind = iota
	SymbolKindData
	SymbolKindConstant
	SymbolKindObject
)

// Symbol is one entry of the import, export or function symbol table
// (spec.md §6).
type Symbol struct {
	Name           string
	TypeDescriptor uint32
	Externality    Externality
	Kind           SymbolKind
	// FirstValue is the first 64-bit instruction word index of a Function
	// symbol's body, or the byte offset of a Data/Constant/Object symbol.
	FirstValue uint64
}

// Function is a contiguous run of 64-bit instruction words belonging to
// one function (spec.md §3 "Module").
type Function struct {
	Name  string
	Words []uint64
}

// Module is the read-only view the codegen pipeline operates on. It never
// mutates any of its fields during codegen (spec.md §5 "the module's
// read-only data blobs are immutable during codegen").
type Module struct {
	PointerSize int // 4 or 8, bytes.
	EntryPoint  int // function table index, or -1.

	Functions []Function
	Constants []byte // read-only constant-data blob, pre-populated by the loader.
	Strings   []byte // string blob.

	Imports   []Symbol
	Exports   []Symbol
	FuncTable []Symbol // one entry per Functions[i], possibly mixing local/imported.
}

// Builder assembles an in-memory Module for tests and for the cmd/sdvmc
// demonstration driver, standing in for the real on-disk loader (out of
// scope per spec.md §1).
type Builder struct {
	m Module
}

func NewBuilder(pointerSize int) *Builder {
	return &Builder{m: Module{PointerSize: pointerSize, EntryPoint: -1}}
}

// AddFunction appends a function body and returns its index.
func (b *Builder) AddFunction(name string, words []uint64) int {
	idx := len(b.m.Functions)
	b.m.Functions = append(b.m.Functions, Function{Name: name, Words: words})
	b.m.FuncTable = append(b.m.FuncTable, Symbol{
		Name: name, Kind: SymbolKindFunction, Externality: ExternalitySDVM, FirstValue: uint64(idx),
	})
	return idx
}

// AddImport registers an externally-defined symbol and returns its index
// into Module.Imports.
func (b *Builder) AddImport(name string, kind SymbolKind, externality Externality) int {
	idx := len(b.m.Imports)
	b.m.Imports = append(b.m.Imports, Symbol{Name: name, Kind: kind, Externality: externality})
	return idx
}

// AddExport registers sym as externally visible and returns its index
// into Module.Exports.
func (b *Builder) AddExport(sym Symbol) int {
	idx := len(b.m.Exports)
	b.m.Exports = append(b.m.Exports, sym)
	return idx
}

// AddString appends bytes to the string blob and returns the byte offset.
func (b *Builder) AddString(s string) uint32 {
	off := uint32(len(b.m.Strings))
	b.m.Strings = append(b.m.Strings, s...)
	b.m.Strings = append(b.m.Strings, 0)
	return off
}

func (b *Builder) SetEntryPoint(funcIndex int) { b.m.EntryPoint = funcIndex }

func (b *Builder) Build() *Module { return &b.m }
