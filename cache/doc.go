// Package cache provides the structural intern table of the computation
// graph.
//
// Every kernel node is described by a canonical byte key (kernel, arguments
// and input node IDs). Adding a node whose key is already interned returns
// the existing node, so equal subgraphs are built and evaluated once. Keys
// are spread over shards by their xxhash digest, which also serves as the
// node's hash.
//
//	table := cache.NewInterner[pipeline.NodeID](0)
//	id, shared := table.Intern(key, func(digest uint64) pipeline.NodeID { return add(digest) })
//
// Eviction only loses sharing; callers must never rely on an entry staying
// resident.
package cache
