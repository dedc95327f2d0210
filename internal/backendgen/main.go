// Command backendgen derives the lux backend from the lattigo backend.
//
// Both backends drive the same lattice API under different module paths, so
// internal/lux is internal/lattigo with its imports and names rewritten. Run it
// through go generate in internal/lattigo:
//
//	go run ../backendgen --src . --dst ../lux
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

const generated = "// Code generated by backendgen from internal/lattigo. DO NOT EDIT."

// rewrite is one substitution, applied in order.
type rewrite struct {
	from *regexp.Regexp
	to   string
}

var rewrites = []rewrite{
	{regexp.MustCompile(`tuneinsight/lattigo/v6`), "luxfi/lattice/v7"},
	{regexp.MustCompile(`\blattigo\b`), "lux"},
}

func main() {
	fs := pflag.NewFlagSet("backendgen", pflag.ExitOnError)
	src := fs.String("src", ".", "directory of the lattigo backend")
	dst := fs.String("dst", "../lux", "directory the lux backend is written to")
	_ = fs.Parse(os.Args[1:])

	if err := run(*src, *dst); err != nil {
		fmt.Fprintf(os.Stderr, "backendgen: %v\n", err)
		os.Exit(1)
	}
}

func run(src, dst string) error {
	files, err := filepath.Glob(filepath.Join(src, "*.go"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no go files in %s", src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		in, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		out, err := translate(in)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		name := filepath.Base(f)
		if err := os.WriteFile(filepath.Join(dst, name), out, 0o644); err != nil {
			return err
		}
		written = append(written, name)
	}

	// Drop files whose source is gone.
	stale, err := filepath.Glob(filepath.Join(dst, "*.go"))
	if err != nil {
		return err
	}
	for _, f := range stale {
		if !slices.Contains(written, filepath.Base(f)) {
			if err := os.Remove(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// translate rewrites one source file. The go:generate directive stays with
// the source and the generated marker goes after the license header.
func translate(in []byte) ([]byte, error) {
	var lines []string
	for _, line := range strings.Split(string(in), "\n") {
		if strings.HasPrefix(line, "//go:generate") {
			continue
		}
		lines = append(lines, line)
	}
	text := strings.Join(lines, "\n")
	for _, r := range rewrites {
		text = r.from.ReplaceAllString(text, r.to)
	}

	var buf bytes.Buffer
	header, body, ok := strings.Cut(text, "\n\n")
	if ok && strings.HasPrefix(header, "// Copyright") {
		buf.WriteString(header + "\n\n" + generated + "\n\n" + body)
	} else {
		buf.WriteString(generated + "\n\n" + text)
	}
	return format.Source(buf.Bytes())
}
