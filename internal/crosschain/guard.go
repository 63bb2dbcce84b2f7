package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/observability/metrics"
	"MindPress-Market/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// RoleGrant 是一次查询得到的角色授权状态，只在单次检查内有效。
// Expiry 为零值表示链上只报告了是否持有，没有给出过期时间。
type RoleGrant struct {
	Role    common.Hash
	Grantee common.Address
	Held    bool
	Expiry  time.Time
}

// StateProbe 是只读的链上状态查询能力。
type StateProbe interface {
	RoleGrant(ctx context.Context, hub common.Address, role common.Hash, granter, grantee common.Address) (RoleGrant, error)
	IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error)
}

// Guard 在发出状态变更调用前检查远端状态是否已经满足。
//
// 检查与随后的提交之间没有事务保护：并发的外部授权方可能在两者之间改变状态，
// 最坏情况是发出一笔多余但无害的授权交易。
type Guard struct {
	probe StateProbe
	now   func() time.Time
}

// GuardOption 定义可选配置。
type GuardOption func(*Guard)

// WithClock 替换守卫使用的时钟。
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard 构造守卫。
func NewGuard(probe StateProbe, opts ...GuardOption) *Guard {
	g := &Guard{probe: probe, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ShouldSkip 判断该 Action 是否已经在链上生效。
func (g *Guard) ShouldSkip(ctx context.Context, ectx ExecutionContext, action Action) (bool, error) {
	action = normalize(action)
	if action == nil {
		return false, xerrors.New(CodeUnsupportedAction, "action 为空")
	}
	if g == nil || g.probe == nil {
		return false, nil
	}

	var (
		skip bool
		err  error
	)
	switch a := action.(type) {
	case GrantRole:
		skip, err = g.roleHeld(ctx, ectx, a)
	case SetApprovalForAll:
		skip, err = g.approvalMatches(ctx, ectx, a)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if skip {
		metrics.ObserveGuardSkip(string(action.Kind()))
		logger.Audit().Info("链上状态已满足，跳过调用",
			slog.String("action", string(action.Kind())),
			slog.String("signer", ectx.Signer.Hex()))
	}
	return skip, nil
}

// Pending 返回尚未在链上生效的 Action 下标，保持原有顺序。
func (g *Guard) Pending(ctx context.Context, ectx ExecutionContext, actions []Action) ([]int, error) {
	pending := make([]int, 0, len(actions))
	for i, action := range actions {
		skip, err := g.ShouldSkip(ctx, ectx, action)
		if err != nil {
			return nil, err
		}
		if !skip {
			pending = append(pending, i)
		}
	}
	return pending, nil
}

func (g *Guard) roleHeld(ctx context.Context, ectx ExecutionContext, a GrantRole) (bool, error) {
	hub, err := resolve(ectx, ContractBucketHub)
	if err != nil {
		return false, err
	}
	grantee, err := granteeOf(ectx, a)
	if err != nil {
		return false, err
	}
	grant, err := g.probe.RoleGrant(ctx, hub, a.Role, ectx.Signer, grantee)
	if err != nil {
		return false, probeError(err, "查询角色授权失败", hub)
	}
	if !grant.Held {
		return false, nil
	}
	return grant.Expiry.IsZero() || grant.Expiry.After(g.now()), nil
}

func (g *Guard) approvalMatches(ctx context.Context, ectx ExecutionContext, a SetApprovalForAll) (bool, error) {
	token, err := resolve(ectx, ContractGroupToken)
	if err != nil {
		return false, err
	}
	operator, err := operatorOf(ectx, a)
	if err != nil {
		return false, err
	}
	approved, err := g.probe.IsApprovedForAll(ctx, token, ectx.Signer, operator)
	if err != nil {
		return false, probeError(err, "查询授权状态失败", token)
	}
	return approved == a.Approved, nil
}

func probeError(err error, message string, target common.Address) error {
	code := CodeNetworkUnavailable
	if typed, ok := xerrors.From(err); ok {
		code = typed.Code()
	}
	return xerrors.Wrap(code, err, fmt.Sprintf("%s: %s", message, target.Hex()),
		xerrors.WithMetadata(MetaTarget, target.Hex()))
}
