// Package cli provides the psylog command tree.
//
// Commands open the application lazily, so "help" and flag errors never touch
// the secure store. Secrets (archive passwords, PINs) are read from the
// terminal without echo.
//
//	psylog lock status|enable|disable|delay|lock|unlock|history
//	psylog lock pin set|clear
//	psylog backup create|list|last|restore|verify|delete|export-audio|export-photos
//	psylog snapshot export-csv|import-csv|summary
//	psylog daemon
package cli
