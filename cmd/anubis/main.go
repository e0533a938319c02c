package main

import "github.com/mcoot/anubis-client/internal/cli"

func main() {
	cli.Execute()
}
