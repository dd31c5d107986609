package postgres

import _ "embed"

// Schema is the full DDL for the engine's tables. The integration test
// harness applies it to a fresh container; deployments run it through
// their migration tooling.
//
//go:embed schema.sql
var Schema string
