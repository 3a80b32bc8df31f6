package main

import "poll-decision-backend/cmd"

func main() {
	cmd.Execute()
}
