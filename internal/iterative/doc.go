// Package iterative drives multi-step, model-directed analysis of a dataset.
//
// # Overview
//
// Each step asks a language model for an explanation and a short Python
// snippet, runs the snippet in a remote sandbox and feeds what happened back
// into the next prompt. The model does not decide on its own when the
// analysis is done: a set of heuristics does.
//
// # Loop
//
// Controller.Run walks the following states once per iteration slot:
//
//	HealthCheck -> Generate -> Parse -> (no code: Retry | code: Execute)
//	            -> Classify/Track -> Decide -> Continue | Stop -> Summarize
//
// The loop stops for one of the reasons in types.StopReason. The iteration
// ceiling always wins; the other stop rules are evaluated by Oracle in a
// fixed order:
//
//  1. An explicit completion phrase in the model reply.
//  2. Nothing else may stop the run before MinIterations.
//  3. Enough core topics covered (and at least five iterations).
//  4. After eight iterations, recent steps that keep repeating each other.
//
// # Heuristics
//
//   - TrackTopics tags explanations with analysis topics by keyword.
//   - RepetitionDetector compares the token sets of the last few steps.
//   - NextPrompt builds the continuation prompt from the last output, the
//     accumulated context and the topics still uncovered.
//
// All pattern tables (topics, completion phrases, error families) are
// package-level data in types and sandbox so they can be tuned without
// touching the loop.
//
// # Failures
//
// Model errors, execution errors and dead sandboxes each have their own
// budget. Execution errors are classified by sandbox.ClassifyError; the
// recoverable families trigger a sandbox rebuild, a dataset re-upload or a
// nudge towards a different approach.
//
// # Metrics
//
// Pass a MetricsCollector in RunOptions to observe iterations and runs.
// InMemoryMetricsCollector keeps aggregates for tests and summaries;
// PrometheusCollector exports them. Every step is also wrapped in an
// OpenTelemetry span.
package iterative
