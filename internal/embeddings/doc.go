// Package embeddings provides embedding generation via multiple providers.
//
// Supports TEI (external service, the default for the multilingual model),
// FastEmbed (local ONNX, English models only) and any OpenAI-compatible
// embeddings endpoint through langchaingo. NewProvider selects one at
// runtime and wraps it so every vector it returns has unit length.
package embeddings
