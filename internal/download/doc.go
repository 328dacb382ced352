// Package download runs the two-phase blank form download: fetch the form
// list from the server, then fetch every listed form.
//
// At most one sequence runs at a time. Each sequence owns its cancellation
// and a one-shot watchdog that cancels whichever phase is active once the
// deadline passes. Progress and outcomes reach the caller through Subscribe.
package download
