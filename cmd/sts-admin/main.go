package main

import (
	"fmt"
	"os"

	"github.com/ruianderson/sts-proxy/internal/admincli"
)

func main() {
	if err := admincli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
