// Package conv provides checked integer conversions for lengths read from or
// written to snapshot images.
package conv
