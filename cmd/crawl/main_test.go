package main

import (
	"context"
	"strings"
	"testing"
)

func TestFromArchiveRequiresArchiveStore(t *testing.T) {
	_, err := crawl(context.Background(), nil, nil, flags{fromArchive: "2024-01-02"})
	if err == nil || !strings.Contains(err.Error(), "ARCHIVE_S3") {
		t.Fatalf("expected archive configuration error, got %v", err)
	}
}
