package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"MindPress-Market/sdk/go/market"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/urfave/cli/v2"
)

// main 是 marketctl 命令行工具的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "marketctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "marketctl",
		Usage: "MindPress 市场跨链编排的命令行客户端",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://127.0.0.1:8080",
				EnvVars: []string{"MARKET_API"},
				Usage:   "marketd API 地址",
			},
			&cli.StringFlag{
				Name:    "token",
				EnvVars: []string{"MARKET_API_TOKEN"},
				Usage:   "API 访问令牌",
			},
			&cli.StringFlag{
				Name:    "config",
				Value:   filepath.Join("configs", "market.json"),
				EnvVars: []string{"MARKET_CONFIG"},
				Usage:   "直连链上的命令使用的配置文件",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "单次请求超时",
			},
		},
		Commands: []*cli.Command{
			feesCommand(),
			groupIDCommand(),
			infoCommand(),
			listObjectCommand(),
			createSpaceCommand(),
			delistCommand(),
			jobCommand(),
		},
	}
}

func newClient(c *cli.Context) (*market.Client, error) {
	client, err := market.NewClient(c.String("server"), nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(c.String("token")); token != "" {
		client.SetAccessToken(token)
	}
	return client, nil
}

// requestContext 为单次请求加上超时，wait 类命令不使用它。
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseBig 接受十进制或 0x 前缀的十六进制整数。
func parseBig(name, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("缺少 --%s", name)
	}
	n, ok := math.ParseBig256(value)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("--%s 不是有效的非负整数: %s", name, value)
	}
	return n, nil
}
