// Command depgraph generates a Graphviz DOT description of this
// module's package dependency graph.
//
// Grounded on biscuit/misc/depgraph/main.go, which shells out to `go
// mod graph` and reformats its stdout. That repo builds a bare-metal
// kernel across several cross-compiled sub-modules, where an in-process
// load isn't an option; this module is a single ordinary package tree,
// so the graph is loaded directly with golang.org/x/tools/go/packages
// instead of spawning a subprocess and parsing its text output.
package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/tools/go/packages"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "depgraph:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return fmt.Errorf("loading packages: %w", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return fmt.Errorf("one or more packages had errors")
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintln(w, "digraph deps {")
	seen := make(map[[2]string]bool)
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for path, imp := range p.Imports {
			edge := [2]string{p.PkgPath, path}
			if seen[edge] {
				continue
			}
			seen[edge] = true
			fmt.Fprintf(w, "    %q -> %q;\n", p.PkgPath, imp.PkgPath)
		}
	})
	fmt.Fprintln(w, "}")
	return nil
}
