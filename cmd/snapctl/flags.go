package main

import "flag"

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet("snapctl "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}
