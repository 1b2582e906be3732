package services_test

import (
	"context"
	"testing"

	"darkroom/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithAssetID(ctx, "asset-42")
	ctx = services.WithStage(ctx, "promote")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.AssetIDFromContext(ctx); !ok || id != "asset-42" {
		t.Fatalf("unexpected asset id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "promote" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	ctx = services.WithAssetID(ctx, "")
	if _, ok := services.AssetIDFromContext(ctx); ok {
		t.Fatal("expected no asset id value")
	}
}
