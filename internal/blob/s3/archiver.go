package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// Archiver implements domain.Archiver by exporting aged records to S3 as
// JSONL and pruning them from the primary store once the upload succeeds.
type Archiver struct {
	writer       domain.BlobWriter
	liquidations domain.LiquidationStore
	harvests     domain.HarvestStore
	log          *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	liquidations domain.LiquidationStore,
	harvests domain.HarvestStore,
	log *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:       writer,
		liquidations: liquidations,
		harvests:     harvests,
		log:          log,
	}
}

// liquidationLine is the JSONL export shape for a liquidation record. Amounts
// are decimal strings so readers do not lose precision on uint256 values.
type liquidationLine struct {
	ID         string    `json:"id"`
	Caller     string    `json:"caller"`
	SellAsset  string    `json:"sell_asset"`
	BuyAsset   string    `json:"buy_asset"`
	AmountIn   string    `json:"amount_in"`
	QuotedOut  string    `json:"quoted_out"`
	MinOut     string    `json:"min_out"`
	AmountOut  string    `json:"amount_out"`
	ExecutedAt time.Time `json:"executed_at"`
}

// harvestLine is the JSONL export shape for a harvest record.
type harvestLine struct {
	ID         string    `json:"id"`
	Cycle      string    `json:"cycle"`
	Staked     string    `json:"staked"`
	Liquidated string    `json:"liquidated"`
	Forwarded  string    `json:"forwarded"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ArchiveLiquidations exports all liquidations executed before the cutoff to
// archive/liquidations/YYYY-MM.jsonl, then deletes them from the store. The
// count of archived records is returned.
func (a *Archiver) ArchiveLiquidations(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.liquidations.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidations query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	lines := make([]liquidationLine, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, liquidationLine{
			ID:         r.ID,
			Caller:     r.Caller.Hex(),
			SellAsset:  r.SellAsset.Hex(),
			BuyAsset:   r.BuyAsset.Hex(),
			AmountIn:   r.AmountIn.String(),
			QuotedOut:  r.QuotedOut.String(),
			MinOut:     r.MinOut.String(),
			AmountOut:  r.AmountOut.String(),
			ExecutedAt: r.ExecutedAt,
		})
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidations marshal: %w", err)
	}

	path := archivePath("liquidations", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive liquidations upload: %w", err)
	}

	pruned, err := a.liquidations.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(recs)), fmt.Errorf("s3blob: archive liquidations prune: %w", err)
	}

	a.log.Info("archived liquidations",
		"path", path,
		"archived", len(recs),
		"pruned", pruned,
		"before", before.Format(time.RFC3339),
	)
	return int64(len(recs)), nil
}

// ArchiveHarvests exports all harvest cycles executed before the cutoff to
// archive/harvests/YYYY-MM.jsonl, then deletes them from the store. The count
// of archived records is returned.
func (a *Archiver) ArchiveHarvests(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.harvests.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive harvests query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	lines := make([]harvestLine, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, harvestLine{
			ID:         r.ID,
			Cycle:      string(r.Cycle),
			Staked:     r.Staked.String(),
			Liquidated: r.Liquidated.String(),
			Forwarded:  r.Forwarded.String(),
			ExecutedAt: r.ExecutedAt,
		})
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive harvests marshal: %w", err)
	}

	path := archivePath("harvests", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive harvests upload: %w", err)
	}

	pruned, err := a.harvests.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(recs)), fmt.Errorf("s3blob: archive harvests prune: %w", err)
	}

	a.log.Info("archived harvests",
		"path", path,
		"archived", len(recs),
		"pruned", pruned,
		"before", before.Format(time.RFC3339),
	)
	return int64(len(recs)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/liquidations/2026-08.jsonl
//	archive/harvests/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element becomes one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
