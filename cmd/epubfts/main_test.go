package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhowland/epubfts/pkg/types"
)

func TestSyncReport(t *testing.T) {
	result := &types.SyncResult{Seen: 8, Indexed: 3, Removed: 1}
	assert.Equal(t, "10 discovered, 8 seen, 3 indexed, 1 removed.", syncReport(10, result))
}

func TestSyncReportEmptyLibrary(t *testing.T) {
	assert.Equal(t, "0 discovered, 0 seen, 0 indexed, 0 removed.", syncReport(0, &types.SyncResult{}))
}
