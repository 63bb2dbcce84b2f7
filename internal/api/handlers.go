package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MindPress-Market/internal/auth"
	"MindPress-Market/internal/contracts"
	xerrors "MindPress-Market/internal/errors"
	"MindPress-Market/internal/job"
	"MindPress-Market/internal/market"
	"MindPress-Market/internal/web3"
)

const maxBodyBytes = 1 << 20

// ErrorResponse 是所有失败响应的结构。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobListResponse 是 GET /api/v1/jobs 的响应。
type JobListResponse struct {
	Jobs []*job.Job `json:"jobs"`
}

// FeeResponse 是 GET /api/v1/fees 的响应，金额均为 wei 十进制字符串。
type FeeResponse struct {
	RelayFee         string `json:"relay_fee"`
	AckRelayFee      string `json:"ack_relay_fee"`
	CallbackGasPrice string `json:"callback_gas_price"`
	CallbackGasLimit uint64 `json:"callback_gas_limit"`
	RoundTripFee     string `json:"round_trip_fee"`
	CallbackFee      string `json:"callback_fee"`
	ListObjectValue  string `json:"list_object_value"`
	CreateSpaceValue string `json:"create_space_value"`
	ListObjectEther  string `json:"list_object_value_ether"`
}

// HealthResponse 是 GET /healthz 的响应。
type HealthResponse struct {
	Status string               `json:"status"`
	Chains []web3.ChainSnapshot `json:"chains,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败"))
		return
	}
	var req job.SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	created, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		s.logger.Warn("提交任务失败",
			slog.Any("error", err),
			slog.String("kind", string(req.Kind)),
			slog.String("token", auth.Fingerprint(r.Context())),
		)
		writeError(w, err)
		return
	}
	s.logger.Info("任务已受理",
		slog.String("job_id", created.ID),
		slog.String("kind", string(created.Kind)),
		slog.String("token", auth.Fingerprint(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化"))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	if s.fees == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "未配置费用来源"))
		return
	}
	gasLimit := s.callbackGasLimit
	if raw := r.URL.Query().Get("callback_gas_limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "callback_gas_limit 无效"))
			return
		}
		gasLimit = parsed
	}
	pricing, err := s.fees.Quote(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	est, err := market.EstimateFees(pricing, gasLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeeResponse{
		RelayFee:         est.RelayFee.String(),
		AckRelayFee:      est.AckRelayFee.String(),
		CallbackGasPrice: est.CallbackGasPrice.String(),
		CallbackGasLimit: est.CallbackGasLimit,
		RoundTripFee:     est.RoundTripFee.String(),
		CallbackFee:      est.CallbackFee.String(),
		ListObjectValue:  est.ListObjectValue.String(),
		CreateSpaceValue: est.CreateSpaceValue.String(),
		ListObjectEther:  contracts.FormatEther(est.ListObjectValue),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.chains != nil {
		snapshots, err := s.chains.Snapshots(r.Context())
		resp.Chains = snapshots
		if err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListOptions(r *http.Request) ([]job.ListOption, error) {
	q := r.URL.Query()
	var opts []job.ListOption
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "limit 无效: %s", raw)
		}
		opts = append(opts, job.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "offset 无效: %s", raw)
		}
		opts = append(opts, job.WithOffset(offset))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []job.Status
		for _, part := range splitCSV(raw) {
			status := job.Status(part)
			if !job.IsValidStatus(status) {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的任务状态: %s", part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := q.Get("kind"); raw != "" {
		var kinds []job.Kind
		for _, part := range splitCSV(raw) {
			kind := job.Kind(part)
			if !job.IsValidKind(kind) {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的任务类型: %s", part)
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, job.WithKinds(kinds...))
	}
	for _, bound := range []struct {
		key  string
		wrap func(time.Time) job.ListOption
	}{{"since", job.WithUpdatedSince}, {"until", job.WithUpdatedUntil}} {
		raw := q.Get(bound.key)
		if raw == "" {
			continue
		}
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ts < 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "%s 必须是 unix 秒", bound.key)
		}
		opts = append(opts, bound.wrap(time.Unix(ts, 0)))
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		opts = append(opts, job.WithSortOrder(job.SortByUpdatedAsc))
	}
	if raw := q.Get("q"); raw != "" {
		opts = append(opts, job.WithQuery(raw))
	}
	return opts, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// statusFor 把错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, job.CodeJobValidation:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, job.CodeJobNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, job.CodeJobConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, statusFor(code), ErrorResponse{Code: string(code), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
