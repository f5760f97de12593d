// Package session drives the per-connection wake word detection protocol.
package session
