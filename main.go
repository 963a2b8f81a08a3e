package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ranvm/ranvm/internal/compiler"
	"github.com/ranvm/ranvm/internal/disasm"
	"github.com/ranvm/ranvm/internal/parser"
	"github.com/ranvm/ranvm/internal/preprocessor"
	"github.com/ranvm/ranvm/internal/vm"
)

const defaultMemorySize = 1 << 20

func assemble(path string, includePaths []string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stmts, err := parser.New(string(src)).Parse()
	if err != nil {
		return nil, err
	}
	processed, err := preprocessor.New(stmts).WithIncludePaths(includePaths).Process()
	if err != nil {
		return nil, err
	}
	return compiler.New(processed).Compile()
}

var rootCmd = &cobra.Command{
	Use:   "ranvm",
	Short: "assembler and virtual machine for the ran register ISA",
}

var buildCmd = &cobra.Command{
	Use:   "build source.asm",
	Short: "assemble a source file into a bytecode image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includePaths, _ := cmd.Flags().GetStringSlice("include-path")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = args[0] + ".bin"
		}
		image, err := assemble(args[0], includePaths)
		if err != nil {
			return err
		}
		return os.WriteFile(output, image, 0o644)
	},
}

var runCmd = &cobra.Command{
	Use:   "run source.asm",
	Short: "assemble and execute a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includePaths, _ := cmd.Flags().GetStringSlice("include-path")
		memSize, _ := cmd.Flags().GetInt("mem-size")
		image, err := assemble(args[0], includePaths)
		if err != nil {
			return err
		}
		machine, err := vm.New(image, memSize)
		if err != nil {
			return err
		}
		if err := machine.Run(); err != nil {
			return fmt.Errorf("halted: %w (ip=%#x)", err, machine.Registers().IP())
		}
		return nil
	},
}

var disasmCmd = &cobra.Command{
	Use:   "disasm source.asm",
	Short: "assemble a source file and print its instruction listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includePaths, _ := cmd.Flags().GetStringSlice("include-path")
		image, err := assemble(args[0], includePaths)
		if err != nil {
			return err
		}
		entry := readEntry(image)
		lines, err := disasm.Disassemble(image[8:], entry)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line.Text)
		}
		return nil
	},
}

func readEntry(image []byte) uint64 {
	return binary.LittleEndian.Uint64(image[:8])
}

func init() {
	for _, cmd := range []*cobra.Command{buildCmd, runCmd, disasmCmd} {
		cmd.Flags().StringSliceP("include-path", "I", nil, "additional directory to search for #include targets")
	}
	buildCmd.Flags().StringP("output", "o", "", "output path for the bytecode image (defaults to <source>.bin)")
	runCmd.Flags().IntP("mem-size", "m", defaultMemorySize, "guest memory size in bytes")

	rootCmd.AddCommand(buildCmd, runCmd, disasmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
