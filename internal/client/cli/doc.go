// Package cli implements the interactive SceneKeeper client: a REPL that
// edits scene files against the local cache while the sync coordinator
// pushes changes to the server in the background.
package cli
