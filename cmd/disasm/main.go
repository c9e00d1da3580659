// Command disasm disassembles a raw 65C02 binary (loaded at a fixed
// address into a flat 64K space) to stdout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jchacon/apple2e/disassemble"
	"github.com/jchacon/apple2e/memory"
)

var (
	loadAddr uint16
	start    uint16
	length   uint16
)

func main() {
	root := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Disassemble a raw 65C02 binary",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().Uint16Var(&loadAddr, "load", 0x0800, "address the file is loaded at")
	root.Flags().Uint16Var(&start, "start", 0, "address to start disassembly at (defaults to load address)")
	root.Flags().Uint16Var(&length, "length", 0, "number of bytes to disassemble (defaults to the whole file)")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	mem, err := memory.New8BitRAMBank(1<<16, nil)
	if err != nil {
		return err
	}
	addr := loadAddr
	for _, b := range data {
		mem.Write(addr, b)
		addr++
	}

	pc := start
	if pc == 0 {
		pc = loadAddr
	}
	end := pc + uint16(len(data))
	if length != 0 {
		end = pc + length
	}

	for pc < end {
		out, count := disassemble.StepCMOS(pc, mem)
		fmt.Println(out)
		pc += uint16(count)
	}
	return nil
}
