// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the foundry blackboard.
//
// # Overview
//
// The blackboard is the single source of truth for every protocol request: an
// append-only sequence of versions, each an immutable snapshot of the workflow
// state (draft text, scores, iteration count and the audit trail of notes). The
// runner, the lifecycle controller and the live feed all interact only through it.
//
// # Core Concepts
//
// Requests are user-initiated workflow instances with a single current status.
// Status changes go through TransitionStatus, an atomic compare-and-set, so two
// writers can never both move a request out of the same state.
//
// Versions are never updated or deleted. AppendVersion assigns or checks the
// version number inside a Lua script, which keeps numbers unique and strictly
// increasing per request even with concurrent writers. Each version carries a Kind
// that tells machine checkpoints apart from human feedback, approval and decline.
//
// The run lock guards against two runs of the same request: it can only be taken
// while the request is running, and it is owned by a random token.
//
// # Usage Example
//
//	client, err := blackboard.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	req, err := client.CreateRequest(ctx, "sleep hygiene protocol", blackboard.RequestStatusRunning)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	n, err := client.AppendVersion(ctx, &blackboard.Version{
//		RequestID: req.ID,
//		Kind:      blackboard.VersionKindMachine,
//		DraftText: "# Sleep hygiene\n...",
//		Iteration: 2,
//		Finalized: true,
//	})
//
// # Redis Schema
//
// Requests: foundry:{instance_name}:request:{request_id} (hash)
// Request index: foundry:{instance_name}:requests (ZSET, score = created_at_ms)
// Version thread: foundry:{instance_name}:request:{request_id}:versions (ZSET, score = version)
// Versions: foundry:{instance_name}:request:{request_id}:version:{n} (hash)
// Run lock: foundry:{instance_name}:request:{request_id}:run_lock (string, PX ttl)
// Run queue: foundry:{instance_name}:run_queue (list of JSON run jobs)
//
// Pub/Sub: foundry:{instance_name}:version_events
package blackboard
