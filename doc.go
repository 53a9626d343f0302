// Package semsphere provides an embedded content-addressable semantic
// substrate for Go.
//
// Content is decomposed into three hash-keyed tiers: atoms (single code
// points or scalars), compositions (ordered atom sequences, i.e. tokens)
// and relations (ordered sequences of compositions or lower relations).
// Every entity is placed on the unit 3-sphere, indexed through a one-way
// space-filling curve, and connected by a typed edge graph whose
// confidence ratings move with observed evidence.
//
// # Quick Start
//
//	ctx := context.Background()
//	sub, _ := semsphere.Builder().InMemory().Build()
//	defer sub.Close()
//
//	res, _ := sub.IngestText(ctx, "moby-dick#1", "Call me Ishmael")
//
//	// Geometric neighbourhood of a token.
//	matches, _ := sub.Nearest(ctx, entity.KindComposition, point, 5)
//
//	// Rated relationships and multi-hop paths.
//	edges, _ := sub.Neighbors(ctx, captain, "follows", 10)
//	path, _ := sub.FindPath(ctx, captain, whale, "", 3)
//
// # Durability
//
// The in-memory store persists through snapshots on any BlobStore (local
// directory, S3, MinIO); the SQLite store is durable on its own:
//
//	sub, _ := semsphere.Builder().SQLite("./substrate.db").Build()
//
// # Key Properties
//
//   - Identical content always deduplicates: ingestion is idempotent
//   - Placement is deterministic, no trained model in the loop
//   - Edge ratings converge under repeated evidence and never double
//     count the same provenance
//   - Spatial queries verify every candidate with exact geodesics
package semsphere
