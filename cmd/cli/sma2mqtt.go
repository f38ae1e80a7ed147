package main

import (
	"github.com/homewire/sma2mqtt/cmd"
)

func main() {
	cmd.Execute()
}
