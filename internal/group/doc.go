// Package group is the process-group transport the search runs on.
//
// A process group is a fixed number of processes, each identified by a rank in
// [0, size). Rank 0 is the root (the coordinator). The group offers exactly the
// operations the search needs:
//
//   - Bcast: the root publishes the search parameters; every rank blocks until
//     it has them
//   - ReduceSum: every rank contributes a number; the root gets the total
//   - Isend: a worker starts sending a message to the root without blocking
//   - Iprobe / Irecv: the root looks for, and starts receiving, the next
//     message from any worker without blocking
//   - Abort: any rank stops the whole group
//
// # Implementations
//
// Local: every rank is a goroutine of one process. Used for single-process
// runs and for tests.
//
// HTTP: the coordinator and each worker serve a small HTTP API (see package
// cluster). Workers register with the coordinator, which pushes the broadcast
// to each of them and queues incoming match reports in a Mailbox.
//
// NATS: ranks meet on a NATS server under a per-run subject prefix. The
// broadcast is the reply to each worker's join request.
//
// # Buffering
//
// Messages the root has not yet received wait in the transport (a Mailbox),
// in arrival order. The callers therefore only ever track one outstanding
// transfer per direction.
package group
