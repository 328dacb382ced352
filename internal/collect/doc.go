// Package collect holds the explicit application context: the on-disk
// directory layout, the shared HTTP session and the activity logger. One
// Context is built in main and handed to every component that needs it.
package collect
