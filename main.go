package main

import "github.com/agentic-research/bundlekit/cmd"

func main() {
	cmd.Execute()
}
