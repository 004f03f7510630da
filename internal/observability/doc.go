// Package observability provides monitoring and debugging capabilities for
// the agent loop through metrics, structured logging, and distributed
// tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Agent loop iteration outcomes
//   - LLM API request latency and token usage
//   - Tool execution performance
//   - Confirmation outcomes by tier
//   - Safety rejections by level and reason
//   - Error rates by kind
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	metrics.LoopIteration("tool_call")
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	start = time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("execute_query", "success", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/session/run/tool-call ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddRunID(ctx, run.ID)
//
//	logger.Info(ctx, "Dispatching tool call",
//	    "tool_name", "execute_query",
//	    "call_id", callID,
//	)
//
//	logger.Error(ctx, "LLM request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a run across the agent
// loop, LLM provider calls, and tool dispatch:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "dbagent",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceAgentRun(ctx, runID, "balanced")
//	defer span.End()
//
//	ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-3-opus")
//	defer llmSpan.End()
//	tracer.SetAttributes(llmSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "execute_query")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted: password, passwd, pwd,
// secret, api_key, apikey, token, auth, authorization, private_key,
// privatekey.
package observability
