package codegen

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/sdvm-project/sdvmc/internal/codegen/obj"
)

// encodeObjectToFile writes o as a small length-prefixed dump: a real
// ELF/COFF/Mach-O encoder is out of scope per spec.md §1, and hand-rolling
// one would not be grounded in anything the corpus actually does. This
// format exists only so cmd/sdvmc has something concrete to write; the
// module has no reader for it.
func encodeObjectToFile(o *obj.Object, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeString(w, "SDVMOBJ1")
	writeUint32(w, uint32(len(o.Sections)))
	for _, s := range o.Sections {
		writeString(w, s.Name)
		writeUint32(w, uint32(s.Align))
		writeUint32(w, uint32(len(s.Bytes)))
		w.Write(s.Bytes)
	}
	writeUint32(w, uint32(len(o.Symbols)))
	for _, s := range o.Symbols {
		writeString(w, s.Name)
		writeString(w, s.Section)
		writeUint64(w, uint64(s.Offset))
		writeUint64(w, uint64(s.Size))
		if s.Global {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	}
	writeUint32(w, uint32(len(o.Relocations)))
	for _, r := range o.Relocations {
		writeString(w, r.Section)
		writeUint64(w, uint64(r.Offset))
		w.WriteByte(r.Kind)
		w.WriteByte(uint8(r.Target))
		writeString(w, r.SymbolName)
		writeUint32(w, uint32(r.FuncIndex))
		writeUint64(w, uint64(r.Addend))
	}
	return w.Flush()
}

func writeString(w *bufio.Writer, s string) {
	writeUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func writeUint32(w *bufio.Writer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.Write(tmp[:])
}

func writeUint64(w *bufio.Writer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tmp[:])
}
