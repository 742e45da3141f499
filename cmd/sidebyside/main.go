package main

import "sidebyside-backend/cmd/sidebyside/commands"

func main() {
	commands.Execute()
}
