// Package cmd 实现了 dnsctl 命令行工具的所有子命令。
// dnsctl 通过网关 HTTP 接口提交请求、查询状态和管理记录。
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriys/dnsflow/internal/gatewayclient"
)

var rootCmd = &cobra.Command{
	Use:   "dnsctl",
	Short: "Command-line client for the DNS orchestration gateway",
	Long: `dnsctl submits DNS provisioning requests, inspects their status
and lists provisioned records through the gateway HTTP API.`,
}

// Execute 运行根命令。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "Gateway API base URL")
	rootCmd.PersistentFlags().String("api-version", "v1", "Gateway API version")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api_version", rootCmd.PersistentFlags().Lookup("api-version"))
	viper.SetEnvPrefix("DNSCTL")
	viper.AutomaticEnv()
}

// client 按配置构建网关客户端。
func client() *gatewayclient.Client {
	return gatewayclient.New(viper.GetString("api_url")).WithVersion(viper.GetString("api_version"))
}

// cmdContext 返回子命令共用的带超时上下文。
func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// printJSON 把结果以缩进 JSON 打印到标准输出。
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
