package main

import "goalline-alerts/internal/cli"

func main() {
	cli.Execute()
}
