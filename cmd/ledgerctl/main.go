package main

import "github.com/buildwithgrove/ledgerclient/cmd/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
