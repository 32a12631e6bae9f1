// Package db embeds the database schema and the demo catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the demo product catalog loaded by seed-db and by the API
// server in memory mode.
//
//go:embed seed/catalog.json
var Catalog []byte
