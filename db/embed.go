// Package db provides the embedded database migrations.
package db

import "embed"

// Migrations holds the versioned up/down scripts in golang-migrate layout.
//
//go:embed migrations/*.sql
var Migrations embed.FS
