// Package app builds the process-wide service container.
//
// Services is constructed exactly once by the command being run and passed
// to whatever needs it. Nothing in the module keeps its own global copy of
// the embedder, the store or the model client.
package app
