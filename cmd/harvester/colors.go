package main

import "github.com/fatih/color"

// Terminal summary coloring, grounded on estuary-flow's flowctl/cmd-test.go
// package-level SprintFunc vars. Exit codes, not a live dashboard, carry
// the signal; these just make the final line scannable.
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)
