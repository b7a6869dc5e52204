package main

import "github.com/letsbehealthy/stepcoin/internal/cli"

func main() {
	cli.Execute()
}
