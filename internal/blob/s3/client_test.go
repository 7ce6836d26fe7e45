package s3blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/prod/")}
	if got := c.objectKey("ledger/2026-10-19/1.json"); got != "prod/ledger/2026-10-19/1.json" {
		t.Fatalf("objectKey = %q", got)
	}
	if got := c.relativePath("prod/ledger/x.json"); got != "ledger/x.json" {
		t.Fatalf("relativePath = %q", got)
	}
	bare := &Client{prefix: normalisePrefix("")}
	if got := bare.objectKey("/a.json"); got != "a.json" {
		t.Fatalf("bare objectKey = %q", got)
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrap: %w", &types.NoSuchKey{})) {
		t.Error("NoSuchKey not detected")
	}
	if !isNotFound(statusErr(404)) {
		t.Error("bare 404 not detected")
	}
	if isNotFound(statusErr(500)) || isNotFound(errors.New("boom")) {
		t.Error("false positive")
	}
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("missing bucket accepted")
	}
	if _, err := New(context.Background(), ClientConfig{Bucket: "b"}); err == nil {
		t.Error("missing region accepted")
	}
}
