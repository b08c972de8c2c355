package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/amiya-sh/amiya"
)

func main() {
	version := flag.BoolP("version", "V", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("amiya " + amiya.Version)
		return
	}

	if err := amiya.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "amiya:", err)
		os.Exit(1)
	}
}
