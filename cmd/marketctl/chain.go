package main

import (
	"fmt"

	"MindPress-Market/internal/app"
	"MindPress-Market/internal/config"
	"MindPress-Market/internal/crosschain"
	"MindPress-Market/internal/deployment"
	"MindPress-Market/internal/market"
	"MindPress-Market/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func feesCommand() *cli.Command {
	return &cli.Command{
		Name:  "fees",
		Usage: "查询当前的跨链费用估算",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "gas-limit", Usage: "回调 gas 上限，为 0 时使用服务端默认值"},
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(c)
			defer cancel()
			fees, err := client.Fees(ctx, c.Uint64("gas-limit"))
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, fees)
		},
	}
}

type groupIDOutput struct {
	Name    string `json:"name"`
	Owner   string `json:"owner,omitempty"`
	GroupID string `json:"group_id"`
	Source  string `json:"source"`
}

func groupIDCommand() *cli.Command {
	return &cli.Command{
		Name:  "group-id",
		Usage: "计算或查询对象上架时创建的分组 ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "object-id", Required: true, Usage: "对象 ID"},
			&cli.StringFlag{Name: "owner", Usage: "分组所有者地址，local 与 listing 必填"},
			&cli.StringFlag{Name: "source", Value: "local", Usage: "local（本地推导）、listing（getListGroupId）或 name（getGroupId）"},
		},
		Action: func(c *cli.Context) error {
			objectID, err := parseBig("object-id", c.String("object-id"))
			if err != nil {
				return err
			}
			name := market.GroupName(objectID)
			source := c.String("source")
			out := groupIDOutput{Name: name, Owner: c.String("owner"), Source: source}

			var owner common.Address
			switch source {
			case "local", "listing":
				if !common.IsHexAddress(out.Owner) {
					return fmt.Errorf("%s 需要有效的 --owner", source)
				}
				owner = common.HexToAddress(out.Owner)
				out.Owner = owner.Hex()
			case "name":
			default:
				return fmt.Errorf("未知的 --source: %s", source)
			}
			if source == "local" {
				out.GroupID = crosschain.LocalGroupID(owner, name).String()
				return printJSON(c.App.Writer, out)
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(c)
			defer cancel()
			chain, err := app.ConnectChain(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer chain.Close()
			resolver, err := app.GroupIDResolver(source, chain.EVM)
			if err != nil {
				return err
			}
			id, err := resolver.GroupID(ctx, owner, name)
			if err != nil {
				return err
			}
			out.GroupID = id.String()
			return printJSON(c.App.Writer, out)
		},
	}
}

type infoOutput struct {
	Deployment *deployment.Record   `json:"deployment"`
	Addresses  crosschain.Addresses `json:"addresses"`
	Fees       market.FeeEstimate   `json:"fees"`
	Chains     []web3.ChainSnapshot `json:"chains"`
	Errors     []string             `json:"errors,omitempty"`
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "直连链上，输出部署记录、合约地址与费用",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "gas-limit", Usage: "估算费用使用的回调 gas 上限"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(c)
			defer cancel()
			chain, err := app.ConnectChain(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer chain.Close()

			gasLimit := c.Uint64("gas-limit")
			if gasLimit == 0 {
				gasLimit = cfg.Orchestrator.CallbackGasLimit
			}
			pricing, err := crosschain.FetchPricing(ctx, chain.EVM)
			if err != nil {
				return err
			}
			fees, err := market.EstimateFees(pricing, gasLimit)
			if err != nil {
				return err
			}
			out := infoOutput{
				Deployment: chain.Record,
				Addresses:  chain.Context.Addresses,
				Fees:       fees,
			}
			snapshots, err := chain.Registry.Snapshots(ctx)
			if err != nil {
				out.Errors = append(out.Errors, err.Error())
			}
			out.Chains = snapshots
			return printJSON(c.App.Writer, out)
		},
	}
}
