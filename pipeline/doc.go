// Package pipeline orchestrates the healthcare data processing chain:
// ingestion, de-identification, chunking, embedding, and vector store
// upload.
//
// A Context carries the state of exactly one run: configuration, stage
// timings, intermediate results, and diagnostics. Stages implement the
// Stage interface and are driven by one of two executors. The
// SequentialExecutor hands each stage's whole output to the next and
// preserves record order; the ConcurrentExecutor runs every enabled stage
// as its own worker connected by bounded channels, trading global
// ordering for pipeline parallelism. Runner is the high-level entry point
// that wires configuration, context, and executor together and produces a
// uniform RunResult.
//
// Stage enablement is configuration-driven: an explicit "enabled" flag in
// a stage's section always wins, and legacy presence-based rules apply
// otherwise. Stage configuration sections are found under the canonical
// stage name or an accepted alias.
package pipeline
