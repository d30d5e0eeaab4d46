// Package gossip implements the cluster membership and anti-entropy engine
// of a strato node: the three-way SYN/ACK/ACK2 exchange, the per-node
// heartbeat and application state table, and the digest-driven
// reconciliation that lets every member converge on the element-wise
// maximum of the cluster's state.
//
// A single executor goroutine owns the endpoint state table. Transports and
// timers post events into its mailbox; everything else only ever reads
// snapshots. Liveness comes from a phi-accrual failure detector fed by the
// heartbeats the exchanges carry.
package gossip
