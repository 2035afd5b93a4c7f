package main

import "github.com/bryanchriswhite/MatrixOverlay/cmd/matrixoverlay/commands"

func main() {
	commands.Execute()
}
