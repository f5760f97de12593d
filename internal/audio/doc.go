// Package audio provides PCM reframing, format conversion and WAV helpers.
package audio
