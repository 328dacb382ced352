// Package settings owns the two preference stores: the known-key registry
// with defaults, the versioned settings file used to move configuration
// between devices, and the admin password gate.
package settings
