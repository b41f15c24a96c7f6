// Command icarusgen scans a package directory for `//icarus:tool`
// directive comments and emits one "<file>_icarus.go" companion per source
// file that declares annotated functions. Invoked via `go:generate`, never
// at build time.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/icarus-mcp/icarus/internal/toolgen"
)

func main() {
	dir := flag.String("dir", ".", "package directory to scan for //icarus:tool directives")
	flag.Parse()

	if err := run(*dir); err != nil {
		fmt.Fprintln(os.Stderr, "icarusgen:", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	fset := token.NewFileSet()

	// First pass: parse every source file and gather the package's struct
	// declarations, so a record-style tool in one file can use a request
	// struct declared in another.
	type parsed struct {
		name string
		file *ast.File
	}
	var files []parsed
	structs := map[string][]toolgen.StructField{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if strings.HasSuffix(name, "_icarus.go") || strings.HasSuffix(name, "_test.go") {
			continue
		}

		path := filepath.Join(dir, name)
		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		fileStructs, err := toolgen.CollectStructs(file)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for k, v := range fileStructs {
			structs[k] = v
		}
		files = append(files, parsed{name: name, file: file})
	}

	for _, p := range files {
		specs, err := toolgen.ParseFile(fset, p.file)
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		if len(specs) == 0 {
			continue
		}
		if err := writeCompanion(dir, p.name, p.file.Name.Name, specs, structs); err != nil {
			return err
		}
	}
	return nil
}

func writeCompanion(dir, sourceName, pkgName string, specs []toolgen.FuncSpec, structs map[string][]toolgen.StructField) error {
	base := strings.TrimSuffix(sourceName, ".go")
	outPath := filepath.Join(dir, base+"_icarus.go")

	var chunks [][]byte
	for _, spec := range specs {
		rendered, err := toolgen.Generate(pkgName, spec, structs)
		if err != nil {
			return fmt.Errorf("generating %s: %w", spec.FuncName, err)
		}
		chunks = append(chunks, rendered)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	for i, chunk := range chunks {
		if i > 0 {
			// subsequent chunks re-declare "package X" and duplicate
			// imports; strip down to decls after the first chunk.
			chunk = stripHeader(chunk)
		}
		if _, err := out.Write(chunk); err != nil {
			return err
		}
		if _, err := out.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return nil
}

// stripHeader removes the package clause and import block from a
// subsequent generated chunk so multiple tool functions in one source file
// can share a single companion file without import-redeclaration errors.
func stripHeader(src []byte) []byte {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return src
	}
	var buf strings.Builder
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			continue
		}
		start := fset.Position(decl.Pos()).Offset
		end := fset.Position(decl.End()).Offset
		buf.Write(src[start:end])
		buf.WriteString("\n\n")
	}
	return []byte(buf.String())
}
