package codegen

import "encoding/binary"

// SymbolRelocation is an outstanding cross-reference to a module-level
// symbol (an imported/exported/local function or global) rather than to
// an intra-function Label. Unlike LabelTable's relocations, these cannot
// be resolved until the object-file writer has assigned every function
// and symbol a final address, so the Machine only records them here and
// Compiler drains them into an obj.Relocation per spec.md §6.
type SymbolRelocation struct {
	Offset     int64
	SymbolName string
	PCRelative bool
	Addend     int64
}

// CodeBuffer accumulates one function's emitted machine code. It
// implements Patcher so a LabelTable can resolve its pending
// relocations directly against it (spec.md §4.6).
type CodeBuffer struct {
	bytes      []byte
	symRelocs  []SymbolRelocation
}

// RequestSymbolRelocation records a cross-function/symbol reference at
// the given byte offset, left as zero bytes until the object-file writer
// links the module (spec.md §6 "Outputs produced for the object-file
// writer").
func (b *CodeBuffer) RequestSymbolRelocation(offset int64, name string, pcRelative bool, addend int64) {
	b.symRelocs = append(b.symRelocs, SymbolRelocation{Offset: offset, SymbolName: name, PCRelative: pcRelative, Addend: addend})
}

func (b *CodeBuffer) SymbolRelocations() []SymbolRelocation { return b.symRelocs }

func (b *CodeBuffer) Len() int64 { return int64(len(b.bytes)) }

func (b *CodeBuffer) Write(p []byte) { b.bytes = append(b.bytes, p...) }

func (b *CodeBuffer) WriteByte(v byte) { b.bytes = append(b.bytes, v) }

func (b *CodeBuffer) WriteUint32LE(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func (b *CodeBuffer) WriteUint64LE(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

// Align pads with zero bytes until Len() is a multiple of n.
func (b *CodeBuffer) Align(n int64) {
	for b.Len()%n != 0 {
		b.WriteByte(0)
	}
}

func (b *CodeBuffer) Bytes() []byte { return b.bytes }

// Raw exposes the underlying, mutable byte slice so a Patcher can rewrite
// already-emitted bytes in place.
func (b *CodeBuffer) Raw() []byte { return b.bytes }

// Patch implements Patcher for the three relocation kinds common to
// every ISA this package targets (Relative32, Absolute32, Absolute64). RISC-V's split/narrow relocation kinds
// are patched by that package's own Patcher, which wraps a CodeBuffer and
// falls back to this method for the kinds it doesn't own (spec.md §4.6).
func (b *CodeBuffer) Patch(offset int64, kind RelocationKind, value int64) error {
	switch kind {
	case RelocationRelative32, RelocationAbsolute32:
		if value < -(1<<31) || value >= (1<<31) {
			return &RelocationOverflowError{Offset: value, Kind: kind}
		}
		binary.LittleEndian.PutUint32(b.bytes[offset:offset+4], uint32(int32(value)))
		return nil
	case RelocationAbsolute64:
		binary.LittleEndian.PutUint64(b.bytes[offset:offset+8], uint64(value))
		return nil
	default:
		return &RelocationOverflowError{Offset: value, Kind: kind}
	}
}
