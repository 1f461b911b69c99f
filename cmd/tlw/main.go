package main

import "github.com/timelock-wallet/tlw/internal/cli"

func main() {
	cli.Execute()
}
