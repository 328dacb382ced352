// Package app is the main-menu controller: it owns the menu counters and
// button visibility, drives the form download workflow and the dialogs it
// raises, and fans out change notifications to subscribers.
package app
