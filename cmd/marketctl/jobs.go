package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MindPress-Market/sdk/go/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// submitFlags 为每个提交命令生成独立的 flag 实例。
func submitFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		&cli.StringFlag{Name: "id", Usage: "任务 ID，重复提交同一 ID 不会重复执行"},
		&cli.BoolFlag{Name: "wait", Usage: "等待任务进入终态"},
		&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "等待时的轮询间隔"},
	)
}

func listObjectCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-object",
		Usage: "提交对象上架任务",
		Flags: submitFlags(
			&cli.StringFlag{Name: "object-id", Required: true, Usage: "对象 ID"},
			&cli.StringFlag{Name: "bucket-id", Required: true, Usage: "对象所在桶的 ID"},
			&cli.StringFlag{Name: "price", Required: true, Usage: "上架价格，单位 ether"},
			&cli.StringFlag{Name: "owner", Usage: "分组所有者，默认为签名账户"},
			&cli.StringFlag{Name: "policy-data", Usage: "十六进制编码的策略数据"},
			&cli.StringFlag{Name: "failure-strategy", Usage: "回调失败处理策略"},
			&cli.Uint64Flag{Name: "callback-gas", Usage: "回调 gas 上限"},
		),
		Action: func(c *cli.Context) error {
			objectID, err := parseBig("object-id", c.String("object-id"))
			if err != nil {
				return err
			}
			bucketID, err := parseBig("bucket-id", c.String("bucket-id"))
			if err != nil {
				return err
			}
			owner := strings.TrimSpace(c.String("owner"))
			if owner != "" && !common.IsHexAddress(owner) {
				return fmt.Errorf("--owner 不是有效地址: %s", owner)
			}
			req := market.ListObjectRequest{
				ObjectID:        objectID,
				BucketID:        bucketID,
				Price:           c.String("price"),
				Owner:           owner,
				PolicyData:      c.String("policy-data"),
				FailureStrategy: c.String("failure-strategy"),
				CallbackGas:     c.Uint64("callback-gas"),
			}
			return submit(c, func(ctx context.Context, client *market.Client) (market.Job, error) {
				return client.ListObject(ctx, c.String("id"), req)
			})
		},
	}
}

func createSpaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-space",
		Usage: "提交存储空间创建任务",
		Flags: submitFlags(
			&cli.StringFlag{Name: "bucket-name", Required: true, Usage: "桶名称"},
			&cli.StringFlag{Name: "primary-sp", Usage: "主存储提供商地址"},
			&cli.IntFlag{Name: "visibility", Value: -1, Usage: "可见性，未指定时使用默认值"},
			&cli.Uint64Flag{Name: "read-quota", Usage: "收费读取额度"},
			&cli.StringFlag{Name: "flow-rate-limit", Usage: "数据集桶的流量速率上限"},
		),
		Action: func(c *cli.Context) error {
			req := market.CreateSpaceRequest{
				BucketName:       c.String("bucket-name"),
				PrimarySP:        c.String("primary-sp"),
				ChargedReadQuota: c.Uint64("read-quota"),
				FlowRateLimit:    c.String("flow-rate-limit"),
			}
			if v := c.Int("visibility"); v >= 0 {
				if v > 255 {
					return fmt.Errorf("--visibility 超出范围: %d", v)
				}
				visibility := uint8(v)
				req.Visibility = &visibility
			}
			return submit(c, func(ctx context.Context, client *market.Client) (market.Job, error) {
				return client.CreateSpace(ctx, c.String("id"), req)
			})
		},
	}
}

func delistCommand() *cli.Command {
	return &cli.Command{
		Name:  "delist",
		Usage: "提交下架任务",
		Flags: submitFlags(
			&cli.StringFlag{Name: "group-id", Required: true, Usage: "上架时创建的分组 ID"},
		),
		Action: func(c *cli.Context) error {
			groupID, err := parseBig("group-id", c.String("group-id"))
			if err != nil {
				return err
			}
			return submit(c, func(ctx context.Context, client *market.Client) (market.Job, error) {
				return client.Delist(ctx, c.String("id"), groupID)
			})
		},
	}
}

// submit 提交任务并按需等待终态。
func submit(c *cli.Context, send func(context.Context, *market.Client) (market.Job, error)) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	job, err := send(ctx, client)
	cancel()
	if err != nil {
		return err
	}
	if c.Bool("wait") && !job.Done() {
		job, err = client.WaitForJob(c.Context, job.ID, c.Duration("interval"))
		if err != nil {
			return err
		}
	}
	return printJSON(c.App.Writer, job)
}

func jobCommand() *cli.Command {
	return &cli.Command{
		Name:  "job",
		Usage: "查询任务",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "查询单个任务",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := jobID(c)
					if err != nil {
						return err
					}
					client, err := newClient(c)
					if err != nil {
						return err
					}
					ctx, cancel := requestContext(c)
					defer cancel()
					job, err := client.GetJob(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, job)
				},
			},
			{
				Name:  "list",
				Usage: "列出任务",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "status", Usage: "按状态过滤，可重复"},
					&cli.StringSliceFlag{Name: "kind", Usage: "按任务类型过滤，可重复"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "返回条数上限"},
					&cli.IntFlag{Name: "offset", Usage: "跳过的条数"},
					&cli.StringFlag{Name: "query", Usage: "按 ID 或错误信息模糊匹配"},
					&cli.BoolFlag{Name: "asc", Usage: "按更新时间升序"},
				},
				Action: func(c *cli.Context) error {
					client, err := newClient(c)
					if err != nil {
						return err
					}
					ctx, cancel := requestContext(c)
					defer cancel()
					jobs, err := client.ListJobs(ctx, market.ListQuery{
						Limit:    c.Int("limit"),
						Offset:   c.Int("offset"),
						Statuses: c.StringSlice("status"),
						Kinds:    c.StringSlice("kind"),
						Query:    c.String("query"),
						Asc:      c.Bool("asc"),
					})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, jobs)
				},
			},
			{
				Name:  "stats",
				Usage: "统计任务状态",
				Action: func(c *cli.Context) error {
					client, err := newClient(c)
					if err != nil {
						return err
					}
					ctx, cancel := requestContext(c)
					defer cancel()
					stats, err := client.JobStats(ctx, market.ListQuery{})
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, stats)
				},
			},
			{
				Name:      "wait",
				Usage:     "等待任务进入终态",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "轮询间隔"},
				},
				Action: func(c *cli.Context) error {
					id, err := jobID(c)
					if err != nil {
						return err
					}
					client, err := newClient(c)
					if err != nil {
						return err
					}
					job, err := client.WaitForJob(c.Context, id, c.Duration("interval"))
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, job)
				},
			},
		},
	}
}

func jobID(c *cli.Context) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", fmt.Errorf("缺少任务 ID")
	}
	return id, nil
}
