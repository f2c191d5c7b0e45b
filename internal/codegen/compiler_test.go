package codegen

import (
	"testing"

	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

// buildIdentity returns a one-argument function that returns its argument
// unchanged, encoded as packed instruction words the way a real loader
// would hand them to the decoder.
func buildIdentity() []uint64 {
	decs := []DecodedInstruction{
		{Opcode: OpBeginArguments, DestType: TypeVoid},
		{Opcode: OpArg, DestType: TypeInt32},
		{Opcode: OpReturn, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeInt32, Field: 1},
			Arg1: OperandSlot{Type: TypeVoid}},
	}
	words := make([]uint64, len(decs))
	for i, d := range decs {
		words[i] = EncodeWord(d)
	}
	return words
}

// buildAddThenCall returns add(3, 4) followed by a void call to the
// module's first imported function, spilling the sum across the call so
// the frame-layout and call-clobber paths both run.
func buildAddThenCall() []uint64 {
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 3},
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 4},
		{Opcode: OpAdd, DestType: TypeInt32,
			Arg0: OperandSlot{Type: TypeInt32, Field: 0}, Arg1: OperandSlot{Type: TypeInt32, Field: 1}},
		{IsConstant: true, Opcode: OpConstImport, DestType: TypeProcedureHandle, Payload: 0},
		{Opcode: OpBeginCall, DestType: TypeVoid},
		{Opcode: OpCallVoid, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeProcedureHandle, Field: 3}, Arg1: OperandSlot{Type: TypeVoid}},
		{Opcode: OpReturn, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeInt32, Field: 2}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	words := make([]uint64, len(decs))
	for i, d := range decs {
		words[i] = EncodeWord(d)
	}
	return words
}

// buildLoopBranch returns a function whose Jump targets a label bound
// earlier in the stream, exercising label discovery and relocation
// resolution end to end.
func buildLoopBranch() []uint64 {
	decs := []DecodedInstruction{
		{IsConstant: true, Opcode: OpConstLabel, DestType: TypeLabel},
		{IsConstant: true, Opcode: OpConstInt, DestType: TypeInt32, Payload: 1},
		{Opcode: OpJump, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeLabel, Field: 0}, Arg1: OperandSlot{Type: TypeVoid}},
		{Opcode: OpReturn, DestType: TypeVoid,
			Arg0: OperandSlot{Type: TypeInt32, Field: 1}, Arg1: OperandSlot{Type: TypeVoid}},
	}
	words := make([]uint64, len(decs))
	for i, d := range decs {
		words[i] = EncodeWord(d)
	}
	return words
}

func TestCompileModuleIdentityAcrossTargets(t *testing.T) {
	for _, target := range []string{"amd64", "arm64", "riscv64"} {
		t.Run(target, func(t *testing.T) {
			c, err := NewConfig(target).Create()
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			b := module.NewBuilder(8)
			b.AddFunction("identity", buildIdentity())
			mod := b.Build()

			if !c.CompileModule(mod) {
				t.Fatalf("CompileModule failed: %v", c.Errors())
			}
			obj := c.Object()
			if len(obj.Sections) == 0 {
				t.Fatalf("expected at least a .text section")
			}
			found := false
			for _, s := range obj.Symbols {
				if s.Name == "identity" && s.Section == ".text" && s.Size > 0 {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected an 'identity' symbol in .text, got %+v", obj.Symbols)
			}
		})
	}
}

func TestCompileModuleSpillAcrossCall(t *testing.T) {
	b := module.NewBuilder(8)
	b.AddImport("host_sink", module.SymbolKindFunction, module.ExternalityC)
	b.AddFunction("compute", buildAddThenCall())
	mod := b.Build()

	c, err := NewConfig("amd64").Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !c.CompileModule(mod) {
		t.Fatalf("CompileModule failed: %v", c.Errors())
	}
}

func TestCompileModuleLoopBranchResolvesLabel(t *testing.T) {
	for _, target := range []string{"amd64", "arm64", "riscv64"} {
		t.Run(target, func(t *testing.T) {
			b := module.NewBuilder(8)
			b.AddFunction("loopy", buildLoopBranch())
			mod := b.Build()

			c, err := NewConfig(target).Create()
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !c.CompileModule(mod) {
				t.Fatalf("CompileModule failed: %v", c.Errors())
			}
		})
	}
}

func TestCompileModuleParallelMatchesSequential(t *testing.T) {
	build := func(parallel bool) *Compiler {
		b := module.NewBuilder(8)
		b.AddFunction("f0", buildIdentity())
		b.AddFunction("f1", buildIdentity())
		b.AddFunction("f2", buildIdentity())
		mod := b.Build()

		cfg := NewConfig("amd64")
		if parallel {
			cfg = cfg.WithParallel()
		}
		c, err := cfg.Create()
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !c.CompileModule(mod) {
			t.Fatalf("CompileModule failed: %v", c.Errors())
		}
		return c
	}

	seq := build(false)
	par := build(true)
	if len(seq.Object().Symbols) != len(par.Object().Symbols) {
		t.Fatalf("expected the same symbol count sequentially and in parallel, got %d vs %d",
			len(seq.Object().Symbols), len(par.Object().Symbols))
	}
}

func TestCreateRejectsUnknownTarget(t *testing.T) {
	if _, err := NewConfig("sparc").Create(); err == nil {
		t.Fatalf("expected an error for an unknown target")
	}
}
