package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"MindPress-Market/internal/auth"
	"MindPress-Market/internal/crosschain"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/job"
	"MindPress-Market/internal/observability/metrics"
	"MindPress-Market/internal/web3"
	"MindPress-Market/pkg/logger"
)

// JobService 是 API 依赖的任务服务，job.Service 实现了该接口。
type JobService interface {
	Submit(ctx context.Context, req job.SubmitRequest) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context, opts ...job.ListOption) ([]*job.Job, error)
	Stats(ctx context.Context, opts ...job.ListOption) (job.Stats, error)
}

// FeeQuoter 读取一份新的费用快照，crosschain.Orchestrator 实现了该接口。
type FeeQuoter interface {
	Quote(ctx context.Context) (crosschain.Pricing, error)
}

// ChainReporter 返回各条链的状态，provider.Registry 实现了该接口。
type ChainReporter interface {
	Snapshots(ctx context.Context) ([]web3.ChainSnapshot, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr             string
	jobs             JobService
	fees             FeeQuoter
	chains           ChainReporter
	auth             *auth.TokenAuthenticator
	allowAnonymous   bool
	callbackGasLimit uint64
	logger           *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithFeeQuoter 启用 /api/v1/fees。
func WithFeeQuoter(q FeeQuoter) Option {
	return func(s *Server) {
		s.fees = q
	}
}

// WithChainReporter 让 /healthz 附带链状态。
func WithChainReporter(r ChainReporter) Option {
	return func(s *Server) {
		s.chains = r
	}
}

// WithAuthenticator 为 /api/v1 下的接口开启 Bearer 令牌认证。
func WithAuthenticator(a *auth.TokenAuthenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithAnonymousAccess 允许在没有配置任何令牌时匿名访问 /api/v1。
// 配置了令牌后该选项不再生效。
func WithAnonymousAccess(allow bool) Option {
	return func(s *Server) {
		s.allowAnonymous = allow
	}
}

// WithCallbackGasLimit 设置费用估算使用的回调 gas 上限。
func WithCallbackGasLimit(limit uint64) Option {
	return func(s *Server) {
		s.callbackGasLimit = limit
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, jobs JobService, opts ...Option) *Server {
	s := &Server{addr: addr, jobs: jobs}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回完整的路由，便于测试直接使用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/v1/jobs", s.handleCreateJob)
	s.route(mux, "GET /api/v1/jobs", s.handleListJobs)
	s.route(mux, "GET /api/v1/jobs/stats", s.handleJobStats)
	s.route(mux, "GET /api/v1/jobs/{id}", s.handleJobDetail)
	s.route(mux, "GET /api/v1/fees", s.handleFees)
	s.route(mux, "GET /healthz", s.handleHealth)

	return s.auth.Middleware(auth.MiddlewareConfig{
		Public:         map[string]bool{"/healthz": true},
		AllowAnonymous: s.allowAnonymous,
	})(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
// 没有配置令牌且未显式允许匿名访问时拒绝启动。
func (s *Server) Start(ctx context.Context) error {
	if !s.auth.Enabled() && !s.allowAnonymous {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置 API 令牌，如需匿名访问请开启 allow_anonymous")
	}
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// route 注册路由并记录请求指标，标签使用路由模式而不是原始路径。
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, time.Since(start))
	}))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
