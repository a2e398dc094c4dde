//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
)

type cmdOptions struct {
	args   []string
	env    []string
	dir    string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = args
	}
}

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(env ...string) cmdOption {
	return func(o *cmdOptions) {
		o.env = append(o.env, env...)
	}
}

func withDir(dir string) cmdOption {
	return func(o *cmdOptions) {
		o.dir = dir
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	line := strings.Join(append([]string{command}, opts.args...), " ")
	if len(opts.env) > 0 {
		line = strings.Join(opts.env, " ") + " " + line
	}
	fmt.Printf("Executing: %s\n", line)
	cmd := exec.Command(command, opts.args...)
	if opts.dir != "" {
		cmd.Dir = opts.dir
	}
	if len(opts.env) > 0 {
		cmd.Env = append(os.Environ(), opts.env...)
	}
	start := time.Now()

	streamOutput := mg.Verbose() || opts.stream

	var b bytes.Buffer
	if streamOutput {
		cmd.Stdout = io.MultiWriter(&b, os.Stdout)
		cmd.Stderr = io.MultiWriter(&b, os.Stderr)
	} else {
		cmd.Stdout = &b
		cmd.Stderr = &b
	}
	err := cmd.Run()
	if err != nil {
		if !streamOutput {
			fmt.Println("... failed command output:")
			fmt.Println(b.String())
		}
		return "", fmt.Errorf("error executing %s %s: %w", command, strings.Join(opts.args, " "), err)
	}
	if mg.Verbose() {
		fmt.Printf("... done in %s\n", time.Since(start).Round(time.Millisecond))
	}
	return b.String(), nil
}
