package main

import "github.com/kyleeasterly/stream-clipper/internal/cli"

func main() {
	cli.Main()
}
