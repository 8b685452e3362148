// =============================================================================
// 📦 FlowMesh 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"runtime"
	"time"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Retry:     DefaultRetryConfig(),
		Pool:      DefaultPoolConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认调度器配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentNodes: runtime.NumCPU(),
		RunTimeout:         0,
		DispatchRate:       0,
		Debug:              false,
	}
}

// DefaultRetryConfig 返回默认重试策略
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		JitterFactor:      0.25,
	}
}

// DefaultPoolConfig 返回默认工作池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:  64,
		QueueSize:   256,
		IdleTimeout: time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "flowmesh",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flowmesh",
		SampleRate:   1.0,
	}
}
