// Package controller binds adapters to a graph and drives its control loop.
//
// A Controller holds an ordered list of poll targets and an ordered list of
// (root node, consumer) pairs. Each Update is one control cycle:
//
//	reset all output roots -> poll all inputs -> read and deliver each output
//
// Resetting happens once, up front, so every output in a cycle observes the
// same post-poll leaf state and shared subgraphs compute once.
//
// Adapters are detected by capability at registration time. A poll target
// without a Poll method fails with ADAPTER/NOT_POLLABLE; a consumer without a
// Consume method fails with CONSTRUCTION/WIRE_ERROR. Nothing malformed is
// discovered at first use.
package controller
