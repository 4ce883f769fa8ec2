// Package broker fans out initialization across every configured tool
// server and aggregates the results.
//
// Each server gets its own goroutine running the full pipeline: transport
// resolution, catalog fetch, schema normalization, tool binding. All
// servers settle before the aggregate is assembled, and when any of them
// fails every connection the others opened is closed before the joined
// error reaches the caller, so a partial failure never leaks child
// processes or open sockets.
package broker
