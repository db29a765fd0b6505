package main

import "taskflow/cmd/taskflow/cmd"

func main() {
	cmd.Execute()
}
