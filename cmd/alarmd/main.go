package main

import "github.com/oshokin/alarm-clock/cmd/alarmd/cmd"

func main() {
	cmd.Execute()
}
