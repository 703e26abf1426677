package main

import "github.com/MeKo-Tech/proximity/internal/cmd"

func main() {
	cmd.Execute()
}
