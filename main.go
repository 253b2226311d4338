package main

import (
	"github.com/sw33tLie/promowatch/cmd"
)

func main() {
	cmd.Execute()
}
