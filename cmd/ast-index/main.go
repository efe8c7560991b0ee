package main

import "github.com/mvp-joe/ast-index/internal/cli"

func main() {
	cli.Execute()
}
