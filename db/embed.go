// Package db provides the embedded goose migrations for the shop schema.
package db

import "embed"

// Migrations holds the versioned SQL migrations, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads from.
const MigrationsDir = "migrations"
