// Command rvrun loads an RV32IMAC ELF program and executes it to
// completion as a single bundle transaction, printing its receipt.
//
// Grounded on bassosimone-risc32/cmd/vm/main.go's flag-driven,
// single-file-argument CLI shape, extended with the address/value
// flags a transaction needs that a bare instruction-set VM does not.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/text/language"

	"rvavm/bundle"
	"rvavm/config"
	"rvavm/console"
	"rvavm/mem"
	"rvavm/state"
	"rvavm/stats"
)

func main() {
	log.SetFlags(0)

	filename := flag.String("f", "", "ELF file to run")
	to := flag.String("to", "", "40-hex-char destination address (defaults to all-zero)")
	from := flag.String("from", "", "40-hex-char source address (defaults to all-zero)")
	value := flag.Uint64("value", 0, "native value to transfer alongside the call")
	timeoutMS := flag.Int("timeout-ms", 1000, "wall-clock budget, converted to an instruction count")
	memSize := flag.Int("mem", mem.DefaultSize, "physical memory size in bytes")
	verbose := flag.Bool("v", false, "print a diagnostic summary after running")
	profilePath := flag.String("jit-profile", "", "write a pprof profile of JIT hit counters here")
	flag.Parse()

	opts := config.RunOptions{TimeoutMS: *timeoutMS, VMMemorySize: *memSize, Verbose: *verbose, Input: *filename}
	if opts.Input == "" {
		fmt.Fprintln(os.Stderr, "usage: rvrun -f <elf-file> [-to <addr>] [-from <addr>] [-value N]")
		os.Exit(config.ExitUsageError)
	}

	toAddr, err := parseAddress(*to)
	if err != nil {
		log.Fatal(err)
	}
	fromAddr, err := parseAddress(*from)
	if err != nil {
		log.Fatal(err)
	}

	code, err := os.ReadFile(opts.Input)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvrun:", err)
		os.Exit(config.ExitLoadError)
	}

	driver, err := bundle.NewDriver(opts.VMMemorySize, opts.StepBudget())
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvrun:", err)
		os.Exit(config.ExitLoadError)
	}
	driver.CreateAccount(toAddr, code)

	r, err := driver.Run(bundle.Transaction{To: toAddr, From: fromAddr, Value: *value})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvrun:", err)
		os.Exit(config.ExitRunError)
	}

	con := console.New(os.Stdout, language.AmericanEnglish)
	con.Tracef("success=%v error_code=%d data_len=%d events=%d", r.Success, r.ErrorCode, len(r.Data), len(r.Events))
	if opts.Verbose {
		con.Tracef("instructions retired: %d", driver.CPU.InstRet)
	}

	if *profilePath != "" {
		f, err := os.Create(*profilePath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := stats.WriteJITProfile(f, driver.JIT); err != nil {
			log.Fatal(err)
		}
	}

	if !r.Success {
		os.Exit(config.ExitRunError)
	}
	os.Exit(config.ExitOK)
}

func parseAddress(s string) (state.Address, error) {
	var addr state.Address
	if s == "" {
		return addr, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("rvrun: invalid address %q: %w", s, err)
	}
	if len(b) != len(addr) {
		return addr, fmt.Errorf("rvrun: address %q must be %d bytes, got %d", s, len(addr), len(b))
	}
	copy(addr[:], b)
	return addr, nil
}
