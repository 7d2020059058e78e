// Package workflow implements the in-process orchestration engine behind
// flowforge's tutorial demos: sequential chains, fan-out/fan-in, conditional
// switches and cyclic feedback loops, composed either directly from the
// pattern types or through WorkflowBuilder + InProcessRunner.
//
// The building block is Executor, a single named unit of work. Pattern
// workflows (SequentialWorkflow, FanOutWorkflow, SwitchWorkflow,
// LoopWorkflow) are themselves Executors, so patterns nest freely.
//
// Graph-based workflows add run events, execution history, checkpointing
// with resume/rollback, a request port for human-in-the-loop gates, and
// per-node error policies (retry, skip with fallback, circuit breaking).
package workflow
