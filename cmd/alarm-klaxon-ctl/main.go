package main

import "github.com/oshokin/alarm-klaxon/cmd/alarm-klaxon-ctl/cmd"

func main() {
	cmd.Execute()
}
