//go:build mage

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderDir = "testbed/shaders"
	outputDir = "bin"
)

// Builds the engine binary into bin/. The headless device is pure Go, so cgo is off.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join(outputDir, "anima"), "."), withEnv("CGO_ENABLED=0"), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles every WGSL shader of the testbed to SPIR-V, failing on the first error.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	dst := filepath.Join(outputDir, "shaders")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(shaderDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".wgsl" {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(source))
		if err != nil {
			return fmt.Errorf("compiling %s: %w", path, err)
		}
		out := filepath.Join(dst, strings.TrimSuffix(filepath.Base(path), ".wgsl")+".spv")
		fmt.Printf("%s -> %s (%d bytes)\n", path, out, len(spirv))
		return os.WriteFile(out, spirv, 0o644)
	})
}
