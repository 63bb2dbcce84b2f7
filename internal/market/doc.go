// Package market 把市场业务操作（上架对象、创建空间、下架）翻译成跨链编排计划，
// 并以任务执行器的形式接入任务流水线。
package market
