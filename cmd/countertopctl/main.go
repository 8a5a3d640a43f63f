package main

import "github.com/noah-isme/yevea-countertop/internal/cli"

func main() {
	cli.Execute()
}
