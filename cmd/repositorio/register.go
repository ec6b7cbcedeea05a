package main

// Importing each backend package solely for its init() side effect,
// which registers it into the backend package's constructor registry
// (spec §9 "Plugin dispatch").
import (
	_ "github.com/djzort/repositorio/internal/backend/apt"
	_ "github.com/djzort/repositorio/internal/backend/plain"
	_ "github.com/djzort/repositorio/internal/backend/yum"
)
