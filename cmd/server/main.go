package main

import "github.com/Togather-Foundation/orbit/cmd/server/cmd"

func main() {
	cmd.Execute()
}
