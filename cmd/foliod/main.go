package main

import (
	"log"

	"github.com/msouli/folio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
