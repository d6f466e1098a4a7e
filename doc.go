// Package mwtest provides an execution engine for large batches of
// black-box test-case invocations.
//
// Each test is one subprocess run; the engine varies in how invocations are
// scheduled:
//
//   - sequential  – one at a time, in list order
//   - pool        – a fixed-size local worker pool
//   - distributed – delegation to a build/test farm through its console tool
//
// Test selections come from preset documents, results flow through a retry
// policy into per-app logs, a JUnit-style XML document and console
// summaries. End-users typically interact with the engine via the
// high-level Service façade exposed by the root package:
//
//	svc, _ := mwtest.New(config)
//	passed, _ := svc.Run(ctx, []string{"verifier"}, resolver.Filter{})
//
// The mwtest binary re-invokes itself in two hidden sub-modes during
// distributed runs: "server" relays queued invocations to the farm tool and
// "wrap" captures one invocation's result on the remote side.
package mwtest
