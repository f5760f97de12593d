// Package keywords discovers installed wake word models on disk.
package keywords
