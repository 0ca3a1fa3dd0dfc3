package main

import "github.com/orchestrator/swarmgate/cmd"

func main() {
	cmd.Execute()
}
