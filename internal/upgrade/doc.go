// Package upgrade runs one upgrade session over a project:
//
//	DetectVersion → CheckIntegrity → FetchAndVerifyNew → ResolveAll → Apply → ReVerify → Done
//
// Every decision is collected before the first write. Apply snapshots all
// files that need a backup before replacing any of them, and a session
// holds an exclusive lock on the project's controls directory.
package upgrade
