// Package main provides the hourglass CLI.
//
// Usage:
//
//	hourglass summary --config net.yaml
//	hourglass forward --config net.yaml --batch 1 --size 64 -v 1
//	hourglass version
package main

import (
	"context"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.1.0"

func main() {
	defer klog.Flush()
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}
