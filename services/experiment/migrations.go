package experiment

import "embed"

// Migrations holds the embedded schema migrations for the experiment
// store, applied by pkg/database.Migrator at startup.
//
//go:embed migrations
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"
