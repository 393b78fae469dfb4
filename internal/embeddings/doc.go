// Package embeddings turns text into dense vectors.
//
// Two providers are available: FastEmbed runs an ONNX model in-process
// (requires cgo and the ONNX runtime library), TEI calls a Text Embeddings
// Inference server over HTTP. Both embed documents and queries with the same
// model so chunk and prompt vectors are comparable under cosine similarity.
package embeddings
