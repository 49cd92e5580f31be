package main

import "github.com/mchmarny/triage/pkg/cli"

func main() {
	cli.Execute()
}
