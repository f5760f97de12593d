// Package detector pools initialized wake word engine instances across sessions.
package detector
