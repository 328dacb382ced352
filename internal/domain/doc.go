// Package domain defines the core collect types and the interfaces the
// adapters implement: form and instance records, typed preferences, reset
// categories and the server-facing fetchers.
//
// No implementation code beyond small value helpers. Interfaces live here so
// that services and adapters can depend on each other without cycles.
package domain
