package main

import "github.com/LeJamon/bookkeep/internal/cli"

func main() {
	cli.Execute()
}
