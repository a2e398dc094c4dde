//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

const defaultConfig = "anima.toml"

// Checks the shaders and runs the testbed with anima.toml.
func (Run) Engine() error {
	return runWithConfig(defaultConfig)
}

// Runs the testbed with the given .toml or .yaml configuration, e.g. mage run:config anima.yaml
func (Run) Config(path string) error {
	return runWithConfig(path)
}

func runWithConfig(path string) error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Printf("Running testbed with %s...\n", path)
	_, err := executeCmd("go", withArgs("run", ".", "-config", path), withStream())
	return err
}
