// Package engine abstracts the wake word detection engine.
package engine
