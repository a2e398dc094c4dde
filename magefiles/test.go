//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the tests of a single package, e.g. mage test:package ./engine/renderer/scheduler
func (Test) Package(pkg string) error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "-v", pkg), withStream())
	return err
}

// Runs go vet, which also checks that command lists are never copied.
func (Test) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withDir("."))
	return err
}
