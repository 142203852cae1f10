// Package cluster holds the messages and HTTP helpers shared by the
// coordinator and the workers of a search group.
//
// # Overview
//
// A search group is one coordinator (rank 0) and size-1 workers. When the
// group runs over HTTP every process serves a small API and talks to its
// peers with the helpers in this package:
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │  rank 0      │
//	              │ /register    │
//	              │ /result      │
//	              │ /reduce      │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Worker 1  │ │ Worker 2  │ │ Worker 3  │
//	│ /bcast    │ │ /bcast    │ │ /bcast    │
//	│ /abort    │ │ /abort    │ │ /abort    │
//	└───────────┘ └───────────┘ └───────────┘
//
// # Protocol
//
// Registration (POST /register, JSON RegisterRequest):
//   - A worker announces its rank and public address
//   - Retried until the coordinator is up
//
// Broadcast (POST /bcast, octet-stream):
//   - Once every rank has registered the coordinator pushes the search
//     parameters to each worker
//
// Reduction (POST /reduce, JSON ReduceRequest):
//   - Each worker reports one value; the coordinator sums them
//
// Results (POST /result, octet-stream):
//   - A worker reports one match per request, tagged with X-Source-Rank
//
// # Usage Example
//
//	body := cluster.RegisterRequest{Worker: cluster.WorkerInfo{Rank: 1, Addr: "http://10.0.0.2:8081"}}
//	if err := cluster.PostJSON(ctx, coord+"/register", body, nil); err != nil {
//	    log.Fatalf("register: %v", err)
//	}
package cluster
