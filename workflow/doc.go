// Copyright (c) FlowMesh Authors.
// Licensed under the MIT License.

/*
Package workflow 提供有向图工作流的构建、校验与并发执行。

# 概述

workflow 包实现了 FlowMesh 的核心引擎：以有向图描述节点之间的依赖关系，
由调度器按就绪规则并发派发节点，节点执行支持超时、指数退避重试、条件
分支与失败容忍。图的构建与校验分离，构图阶段允许出现环，校验阶段统一
报告全部结构问题。

# 核心接口与类型

  - Graph              — 节点与边的存储（保持插入顺序）
  - GraphBuilder       — Fluent API 构建图（含节点级 NodeBuilder）
  - ValidationIssue    — 校验结果（环检测、端点完整性、连通性）
  - ExecutionContext   — 单次运行的共享状态与节点状态机
  - Invoker            — 外部能力接口 Invoke(ctx, node, input)
  - NodeExecutor       — 节点执行器（超时、重试、退避抖动）
  - Engine             — 调度器（就绪集计算、并发上限、速率限制）
  - ExecutionResult    — 终态快照（状态、统计、各节点输出）
  - PredicateRegistry  — 条件谓词注册表（按名称解析边条件）

# 主要能力

  - 节点类型：Agent、Condition、Split、Join、Transform、Delay
  - 就绪规则：普通节点任一前驱存活即就绪，Join 等待全部前驱
  - 失败策略：fatal 终止整次运行 / tolerate 跳过下游继续执行
  - 重试：指数退避 + 抖动，按错误类别过滤，空集表示全部可重试
  - 序列化：GraphDefinition 支持 JSON / YAML 导入导出与校验
  - 执行历史：RunHistory + RunHistoryStore 记录节点完成轨迹
*/
package workflow
