package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring-simulator/internal/analysis"
	"ring-simulator/internal/db"
)

func (a *app) newAnalyzeCmd() *cobra.Command {
	var batch, trackKind string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "recomputes inter-arrival statistics of a stored batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _ := cmd.Flags().GetString("db")
			if dsn == "" {
				return fmt.Errorf("analyze needs a database, set --db or DATABASE_URL")
			}
			ctx := cmd.Context()
			sqlDB, err := db.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			id, err := resolveBatch(ctx, sqlDB, batch, trackKind)
			if err != nil {
				return err
			}
			b, err := db.LoadBatch(ctx, sqlDB, id)
			if err != nil {
				return err
			}
			overall := analysis.Analyze(b.Logs)
			a.logger.Info("batch loaded",
				zap.String("batch", id.String()),
				zap.String("track", b.Track),
				zap.Int("runs", len(b.Logs)),
				zap.Time("created", b.CreatedAt))
			report(cmd.OutOrStdout(), reportHeader{
				BatchID: id.String(),
				Name:    b.Name,
				Seed:    b.Seed,
				NumSims: b.NumSims,
			}, b.Stops, overall, analysis.ByStop(b.Logs))
			return nil
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "id of the batch to analyse (default is the latest)")
	cmd.Flags().StringVarP(&trackKind, "track", "t", "", "restrict the latest batch lookup to a track variant")
	return cmd
}

func resolveBatch(ctx context.Context, sqlDB *sql.DB, batch, trackKind string) (uuid.UUID, error) {
	if batch != "" {
		id, err := uuid.Parse(batch)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid batch id %q: %w", batch, err)
		}
		return id, nil
	}
	return db.LatestBatchID(ctx, sqlDB, trackKind)
}
