package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Printf("command %s: %v", os.Getenv("COMMAND_NUMBER"), os.Args[1:])
}
