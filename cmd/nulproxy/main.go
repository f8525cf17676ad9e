package main

import (
	"log"

	"go.nulproxy.org/nulproxy/src/nulproxycmd"
)

func main() {
	if err := nulproxycmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
