// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/go-psh/psh"
)

// Runs a single command and prints its captured stdout.
func ExampleProcess() {
	p, err := psh.New(nil, "echo", []interface{}{"hello", "world"})
	if err != nil {
		panic(err)
	}
	if err := p.Execute(true, true); err != nil {
		panic(err)
	}
	out, _ := p.Stdout()
	fmt.Print(out) // hello world
}

// Mirrors TestPipelineCatGrepWc in pipeline_test.go.
func ExamplePipeline() {
	cat, err := psh.New(nil, "cat", nil, psh.WithStdinText("aaaa\nbbbb\naaaa\n"))
	if err != nil {
		panic(err)
	}
	grep, err := psh.New(nil, "grep", []interface{}{"aaaa"})
	if err != nil {
		panic(err)
	}
	wc, err := psh.New(nil, "wc", []interface{}{"-l"})
	if err != nil {
		panic(err)
	}

	pl, err := psh.NewPipeline(cat, grep, wc)
	if err != nil {
		panic(err)
	}
	defer pl.Close()

	if err := pl.Execute(true, true); err != nil {
		panic(err)
	}
	out, _ := pl.Stdout()
	fmt.Print(out) // 2
}

func main() {
	ExampleProcess()
	ExamplePipeline()
}
