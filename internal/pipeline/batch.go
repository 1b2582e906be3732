package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"darkroom/internal/logging"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/tier"
)

// Status is the per-item outcome of a batch operation.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusDuplicate   Status = "duplicate"
	StatusQuarantined Status = "quarantined"
	StatusError       Status = "error"
)

// ItemResult reports one input of a batch. Input is the path or asset id the
// caller passed.
type ItemResult struct {
	Input       string        `json:"input"`
	Status      Status        `json:"status"`
	AssetID     string        `json:"asset_id,omitempty"`
	DuplicateOf string        `json:"duplicate_of,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	Kind        services.Kind `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Err         error         `json:"-"`
}

func failed(input string, err error) ItemResult {
	return ItemResult{
		Input:  input,
		Status: StatusError,
		Kind:   services.KindOf(err),
		Error:  err.Error(),
		Err:    err,
	}
}

// runBatch calls fn for every input on at most limit goroutines. Inputs not
// yet started when ctx is cancelled report the context error; started items
// run to completion.
func runBatch(ctx context.Context, inputs []string, limit int, fn func(ctx context.Context, input string) ItemResult) []ItemResult {
	results := make([]ItemResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			results[i] = failed(input, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = failed(input, err)
				return nil
			}
			results[i] = fn(context.WithoutCancel(ctx), input)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// IngestBatch ingests paths on the ingest worker pool.
func (s *Service) IngestBatch(ctx context.Context, paths []string, opts tier.IngestOptions) []ItemResult {
	results := runBatch(ctx, paths, s.cfg.Ingest.Workers, func(ctx context.Context, path string) ItemResult {
		res, err := s.machine.Ingest(ctx, path, opts)
		if err != nil {
			return failed(path, err)
		}
		item := ItemResult{Input: path, AssetID: res.AssetID, DuplicateOf: res.DuplicateOf}
		switch res.Outcome {
		case tier.OutcomeIngested:
			item.Status = StatusSuccess
		case tier.OutcomeDuplicate:
			item.Status = StatusDuplicate
			item.Detail = res.QuarantinePath
		case tier.OutcomeQuarantined:
			item.Status = StatusQuarantined
			item.Detail = res.QuarantinePath
			if res.Cause != nil {
				item.Kind = services.KindOf(res.Cause)
				item.Error = res.Cause.Error()
			}
		}
		return item
	})
	s.logBatch("ingest", results)
	return results
}

// EnrichBatch promotes assets to Silver on the enrichment worker pool.
// Metadata-only fallbacks succeed with the provider failure in Detail.
func (s *Service) EnrichBatch(ctx context.Context, assetIDs []string) []ItemResult {
	results := runBatch(ctx, assetIDs, s.cfg.Enrichment.Workers, func(ctx context.Context, id string) ItemResult {
		res, err := s.machine.Enrich(ctx, id)
		if err != nil {
			return failed(id, err)
		}
		item := ItemResult{Input: id, Status: StatusSuccess, AssetID: id, Detail: string(res.Source)}
		if res.Failure != nil {
			item.Detail = string(res.Source) + ": " + res.Failure.Error()
		}
		return item
	})
	s.logBatch("enrich", results)
	return results
}

// PromoteBatch promotes assets to target on the tier worker pool.
func (s *Service) PromoteBatch(ctx context.Context, assetIDs []string, target store.Tier) []ItemResult {
	results := runBatch(ctx, assetIDs, s.cfg.Tiers.Workers, func(ctx context.Context, id string) ItemResult {
		v, err := s.machine.Promote(ctx, id, target)
		if err != nil {
			return failed(id, err)
		}
		return ItemResult{Input: id, Status: StatusSuccess, AssetID: id, Detail: v.Path}
	})
	s.logBatch("promote", results)
	return results
}

func (s *Service) logBatch(operation string, results []ItemResult) {
	counts := map[Status]int{}
	canceled := 0
	for _, r := range results {
		counts[r.Status]++
		if errors.Is(r.Err, context.Canceled) {
			canceled++
		}
	}
	s.logger.Info("batch finished",
		logging.String("operation", operation),
		logging.Int("items", len(results)),
		logging.Int("succeeded", counts[StatusSuccess]),
		logging.Int("duplicates", counts[StatusDuplicate]),
		logging.Int("quarantined", counts[StatusQuarantined]),
		logging.Int("failed", counts[StatusError]),
		logging.Int("canceled", canceled),
	)
}
