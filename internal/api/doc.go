// Package api 暴露市场任务的 REST 接口：提交与查询任务、读取实时费用以及健康检查。
package api
