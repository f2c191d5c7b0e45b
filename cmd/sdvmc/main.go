package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/sdvm-project/sdvmc/internal/codegen"
	"github.com/sdvm-project/sdvmc/internal/codegen/module"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "Prints usage.")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		return 0
	}

	switch flag.Arg(0) {
	case "compile":
		return doCompile(flag.Args()[1:], stdOut, stdErr)
	case "version":
		fmt.Fprintln(stdOut, "sdvmc development build")
		return 0
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sdvmc <command> [args...]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "\tcompile\tCompiles a demonstration module to a target object file.")
	fmt.Fprintln(w, "\tversion\tPrints the version.")
}

func doCompile(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	target := flags.String("target", runtime.GOARCH, "Compilation target: amd64, arm64 or riscv64.")
	out := flags.String("o", "a.sdvmobj", "Path to write the compiled object to.")
	parallel := flags.Bool("parallel", false, "Compile functions across a bounded worker pool instead of sequentially.")
	verbose := flags.Bool("v", false, "Enables diagnostic logging of each compiled function's size and frame size, and of per-function failures.")

	_ = flags.Parse(args)

	if help {
		fmt.Fprintln(stdErr, "sdvmc compile [flags]")
		flags.PrintDefaults()
		return 0
	}

	cfg := codegen.NewConfig(normalizeTarget(*target))
	if *parallel {
		cfg = cfg.WithParallel()
	}
	if *verbose {
		cfg = cfg.WithLogger(log.New(stdErr, "sdvmc: ", log.LstdFlags))
	}

	compiler, err := cfg.Create()
	if err != nil {
		fmt.Fprintf(stdErr, "error creating compiler: %v\n", err)
		return 1
	}

	mod := demoModule()

	if !compiler.CompileModule(mod) {
		for _, e := range compiler.Errors() {
			fmt.Fprintf(stdErr, "error: %v\n", e)
		}
		return 1
	}

	if err := compiler.EncodeObjectToFile(*out); err != nil {
		fmt.Fprintf(stdErr, "error writing object file: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdOut, "compiled %d function(s) for %s to %s\n", len(mod.Functions), *target, *out)
	return 0
}

// normalizeTarget maps a Go GOARCH value to this backend's target name,
// defaulting to amd64 for any host architecture this backend doesn't
// cover. The real loader would instead reject an unrecognized target;
// this demonstration driver degrades instead, since its only purpose is
// to exercise the pipeline end to end.
func normalizeTarget(t string) string {
	switch t {
	case "arm64", "riscv64":
		return t
	default:
		return "amd64"
	}
}

// demoModule builds a trivial in-memory module standing in for a real
// on-disk loader, which is out of scope for this backend. It returns the
// identity function: one incoming 32-bit argument, returned unchanged.
func demoModule() *module.Module {
	instrs := []codegen.DecodedInstruction{
		{Opcode: codegen.OpBeginArguments, DestType: codegen.TypeVoid},
		{Opcode: codegen.OpArg, DestType: codegen.TypeInt32},
		{Opcode: codegen.OpReturn, DestType: codegen.TypeVoid,
			Arg0: codegen.OperandSlot{Type: codegen.TypeInt32, Field: 1},
			Arg1: codegen.OperandSlot{Type: codegen.TypeVoid}},
	}
	words := make([]uint64, len(instrs))
	for i, d := range instrs {
		words[i] = codegen.EncodeWord(d)
	}

	b := module.NewBuilder(8)
	b.AddFunction("identity", words)
	b.SetEntryPoint(0)
	return b.Build()
}
