// Package config loads, normalizes, and validates Vigil configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and GEMINI_API_KEY. The Config type centralizes every
// knob the daemon and CLI need: detector gateway endpoints and polling
// ceilings, the reasoning provider, the session store backend, and the
// retention janitor.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
