package main

import "github.com/GriffinCanCode/hotexit/internal/cli"

func main() {
	cli.Execute()
}
