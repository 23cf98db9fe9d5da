package main

import "github.com/talentflowlabs/talentflow-core/internal/cli"

func main() {
	cli.Execute()
}
