// Package types contains the shared value types passed between the
// extraction, sync, and search layers.
package types
