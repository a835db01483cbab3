// Package resolve decides what happens to each installed file that no longer
// matches its recorded digest. Resolution only returns decisions; the
// upgrade applies them afterwards, so an abandoned resolution leaves the
// project untouched.
package resolve
