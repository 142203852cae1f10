// Package pipeline moves match reports from workers to the coordinator
// without ever stalling a search loop.
//
// Each side tracks a single transfer. A worker's Sender has one buffer in
// flight; a new match waits for the previous one. The coordinator's Receiver
// has one receive outstanding; anything else waits in the group's mailbox.
// Both are advanced with Poll, once per candidate, from the search goroutine:
//
//	sender := pipeline.NewSender(comm)
//	for cand := range candidates {
//		if hit {
//			err = sender.Submit(ctx, match)
//		}
//		err = sender.Poll()
//	}
package pipeline
