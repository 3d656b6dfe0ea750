// Package node is the largest component: a ring participant that reacts to
// election and leader-announce messages, initiates and retries elections,
// and exposes the control operations the operator console and the failure
// detector drive.
//
// Message classification (ReceiveElection, ReceiveLeader) happens under a
// short-lived lock; forwarding to the successor always runs on its own
// goroutine afterward so a slow or unreachable peer never blocks the
// handler that received the message.
package node
