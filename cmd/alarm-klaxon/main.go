package main

import "github.com/oshokin/alarm-klaxon/cmd/alarm-klaxon/cmd"

func main() {
	cmd.Execute()
}
