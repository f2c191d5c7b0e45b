package codegen

import (
	"fmt"
	"log"
	"sync"

	"github.com/sdvm-project/sdvmc/internal/codegen/backend/isa/amd64"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/isa/arm64"
	"github.com/sdvm-project/sdvmc/internal/codegen/backend/isa/riscv"
	"github.com/sdvm-project/sdvmc/internal/codegen/cfi"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
	"github.com/sdvm-project/sdvmc/internal/codegen/obj"
)

// Config selects the compilation target and the handful of cross-cutting
// knobs this pipeline exposes, in the same clone-and-return-a-new-value
// style wazero's RuntimeConfig uses so a Config can be shared as a
// template and specialized per call site without aliasing bugs.
type Config struct {
	target string

	disableStackCheck bool
	landingPads       bool
	parallel          bool

	logger  *log.Logger
	cfiSink cfi.Sink
}

// NewConfig returns the default Config for target, one of "amd64",
// "arm64" or "riscv64".
func NewConfig(target string) *Config {
	return &Config{target: target, cfiSink: cfi.NopSink{}}
}

func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// WithLogger attaches a diagnostic logger; nil (the default) disables
// tracing entirely.
func (c *Config) WithLogger(l *log.Logger) *Config {
	ret := c.clone()
	ret.logger = l
	return ret
}

// WithStackCheckDisabled records that the prologue's stack-bounds check
// is disabled, mirroring the teacher's Machine.DisableStackCheck escape
// hatch. No target's prologue emits a stack-bounds check, and no stage
// reads this setting, so it does not change the generated code.
func (c *Config) WithStackCheckDisabled() *Config {
	ret := c.clone()
	ret.disableStackCheck = true
	return ret
}

// WithLandingPads records a request for CET/BTI indirect-branch landing
// pads. No Machine reads this setting: EmitPrologue writes no landing-pad
// marker on any target, with or without it.
func (c *Config) WithLandingPads() *Config {
	ret := c.clone()
	ret.landingPads = true
	return ret
}

// WithParallel fans per-function compilation out across a bounded worker
// pool instead of compiling sequentially.
func (c *Config) WithParallel() *Config {
	ret := c.clone()
	ret.parallel = true
	return ret
}

// WithCFISink routes prologue/epilogue unwind events to sink instead of
// discarding them.
func (c *Config) WithCFISink(sink cfi.Sink) *Config {
	ret := c.clone()
	ret.cfiSink = sink
	return ret
}

// Create resolves target to a Machine and returns a ready-to-use
// Compiler.
func (c *Config) Create() (*Compiler, error) {
	m, err := newMachine(c.target)
	if err != nil {
		return nil, err
	}
	sink := c.cfiSink
	if sink == nil {
		sink = cfi.NopSink{}
	}
	return &Compiler{
		cfg:     c,
		machine: m,
		sink:    sink,
		object:  &obj.Object{},
	}, nil
}

func newMachine(target string) (Machine, error) {
	switch target {
	case "amd64":
		return amd64.New(), nil
	case "arm64":
		return arm64.New(), nil
	case "riscv64":
		return riscv.New(), nil
	default:
		return nil, fmt.Errorf("codegen: unknown target %q", target)
	}
}

// CompiledFunction is the per-function output of stage 8: the final
// machine code plus the cross-function symbol references the object-file
// writer (out of scope per spec.md §1) must resolve once every function
// has a final address.
type CompiledFunction struct {
	Name        string
	Code        []byte
	Relocations []SymbolRelocation
}

// Compiler drives the eight pipeline stages over every function of a
// Module and accumulates the result into an in-memory obj.Object (spec.md
// §6 "library entry points").
type Compiler struct {
	cfg     *Config
	machine Machine
	sink    cfi.Sink

	mu     sync.Mutex
	object *obj.Object

	errsMu sync.Mutex
	errs   []error
}

// Object returns the in-memory object assembled so far; tests inspect
// this directly instead of round-tripping through EncodeObjectToFile, the
// way wazevo's own tests read back Compiler.Buf()/Compiler.Format()
// rather than writing to disk.
func (c *Compiler) Object() *obj.Object { return c.object }

// Errors returns every per-function error CompileModule recorded, in
// function-table order.
func (c *Compiler) Errors() []error { return c.errs }

func (c *Compiler) logf(format string, args ...interface{}) {
	if c.cfg.logger != nil {
		c.cfg.logger.Printf(format, args...)
	}
}

// CompileFunction runs stages 1-8 over one function body (spec.md §2, §7:
// "CompileFunction returns (*CompiledFunction, error)").
func (c *Compiler) CompileFunction(mod *module.Module, name string, words []uint64) (cf *CompiledFunction, err error) {
	defer RecoverInternalInvariantViolation(&err)

	decs, err := DecodeFunction(words)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	labelIDs := DiscoverLabels(decs)
	numLabels := 0
	for _, id := range labelIDs {
		if id != LabelIDInvalid && int(id)+1 > numLabels {
			numLabels = int(id) + 1
		}
	}

	intervals := BuildLiveIntervals(decs)
	instrs := make([]CompilerInstruction, len(decs))
	for i, d := range decs {
		instrs[i] = CompilerInstruction{Decoding: d, Index: i, LiveInterval: intervals[i]}
	}

	abi := c.machine.ABI()
	ce := NewConstraintEngine(abi, mod, labelIDs, instrs)
	if err := ce.Run(); err != nil {
		return nil, fmt.Errorf("constrain %s: %w", name, err)
	}

	driver := NewRegAllocDriver(abi)
	driver.Run(instrs)

	frame := ComputeFrameLayout(abi, instrs, driver, c.machine.FramePointerRegister())
	frame.ResolveAll(instrs)

	labels := NewLabelTable(numLabels)
	buf, err := EmitFunction(c.machine, instrs, frame, labels, c.sink)
	if err != nil {
		return nil, fmt.Errorf("emit %s: %w", name, err)
	}

	if err := labels.ResolveAll(c.machine.NewPatcher(buf)); err != nil {
		return nil, fmt.Errorf("resolve labels in %s: %w", name, err)
	}

	c.logf("codegen: compiled %s (%s) to %d bytes, frame size %d", name, c.machine.Name(), buf.Len(), frame.TotalSize)

	rodata := ce.RODataBuilder.Bytes()
	constants := ce.ConstSectionBuilder.Bytes()
	if len(rodata) > 0 {
		c.mu.Lock()
		c.object.Append(".rodata", 16, rodata)
		c.mu.Unlock()
	}
	if len(constants) > 0 {
		c.mu.Lock()
		c.object.Append(".rodata", 16, constants)
		c.mu.Unlock()
	}

	return &CompiledFunction{Name: name, Code: buf.Bytes(), Relocations: buf.SymbolRelocations()}, nil
}

// CompileModule compiles every function in mod and appends each result to
// the Compiler's Object, sequentially or, when Config.WithParallel was
// used, across a bounded worker pool (spec.md §5). It returns true if
// every function compiled without error; per-function failures are
// collected (see Errors) rather than aborting the walk (spec.md §7 "a
// single failure does not halt the module walk").
func (c *Compiler) CompileModule(mod *module.Module) bool {
	results := make([]*CompiledFunction, len(mod.Functions))
	errs := make([]error, len(mod.Functions))

	compileOne := func(i int) {
		fn := mod.Functions[i]
		cf, err := c.CompileFunction(mod, fn.Name, fn.Words)
		results[i] = cf
		errs[i] = err
	}

	if c.cfg.parallel {
		const maxWorkers = 8
		sem := make(chan struct{}, maxWorkers)
		var wg sync.WaitGroup
		for i := range mod.Functions {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				compileOne(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range mod.Functions {
			compileOne(i)
		}
	}

	ok := true
	for i, err := range errs {
		if err != nil {
			ok = false
			c.logf("codegen: %s failed: %v", mod.Functions[i].Name, err)
			c.errsMu.Lock()
			c.errs = append(c.errs, err)
			c.errsMu.Unlock()
			continue
		}
		cf := results[i]
		off := c.object.Append(".text", 16, cf.Code)
		c.object.AddSymbol(obj.Symbol{Name: cf.Name, Section: ".text", Offset: off, Size: int64(len(cf.Code)), Global: true})
		for _, r := range cf.Relocations {
			c.object.AddRelocation(obj.Relocation{
				Section:    ".text",
				Offset:     off + r.Offset,
				Kind:       uint8(RelocationAbsolute64),
				Target:     obj.RelocationTargetSymbol,
				SymbolName: r.SymbolName,
				Addend:     r.Addend,
			})
		}
	}
	return ok
}

// EncodeObjectToFile serializes the assembled Object as a length-prefixed
// debug dump (spec.md §3 "not a real ELF/COFF/Mach-O encoder — out of
// scope per §1") to path.
func (c *Compiler) EncodeObjectToFile(path string) error {
	return encodeObjectToFile(c.object, path)
}
