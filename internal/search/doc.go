// Package search runs the brute-force CRC-32C preimage search on one rank of
// a process group.
//
// Every rank runs the same loop over its share of candidate lengths:
//
//	for length := range partition.Lengths(strategy, rank, size) {
//		for cand := range enumerate.All(alphabet, length) {
//			// stop flag, checksum, report a match, advance the pipeline
//		}
//	}
//
// The Coordinator (rank 0) broadcasts the target and records matches in a
// results.Store, its own and those received from workers. A Worker learns
// the target from the broadcast and reports each match it finds. Neither
// loop ends on its own: the search stops only when the Stopper fires.
package search
