// Package wyoming implements the Wyoming voice protocol event framing.
package wyoming
