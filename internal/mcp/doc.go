// Package mcp exposes question answering as a Model Context Protocol tool.
//
// The server registers a single tool, answer_question, and runs over the
// stdio transport so agent hosts can launch `taxrag mcp` as a subprocess.
// Logs must go to stderr while it runs; stdout carries the protocol.
package mcp
