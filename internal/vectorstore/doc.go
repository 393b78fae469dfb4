// Package vectorstore stores chunk vectors and answers filtered
// nearest-neighbour queries.
//
// Every record carries the dataset it belongs to; searches, deletes and
// listings are always scoped by that value. Two backends implement Index:
//
//   - QdrantIndex talks to a Qdrant server over gRPC.
//   - MemoryIndex embeds chromem-go and needs no external service.
//
// Writes and deletes return only after the backend has applied them.
package vectorstore
