// Package main 是 dnsctl 命令行工具的入口点
package main

import "github.com/oriys/dnsflow/cmd/dnsctl/cmd"

func main() {
	cmd.Execute()
}
