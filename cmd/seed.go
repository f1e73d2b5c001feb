package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/db"
	"github.com/tagops/visitflow/internal/repository"
	"github.com/tagops/visitflow/internal/service/visit"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample visits for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			PingTimeout: cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		svc := visit.New(
			mysqlDB,
			repository.NewVisitsRepository(mysqlDB),
			repository.NewOutboxRepository(mysqlDB),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		samples := []visit.EntryScan{
			{SiteID: "S1", RoomID: "R1", EnlisteeID: "e-100", EnlisteeName: "Alice Example", PackLocation: "Locker-7"},
			{SiteID: "S1", RoomID: "R1", EnlisteeID: "e-101", EnlisteeName: "Bob Example", PackLocation: "Locker-9"},
			{SiteID: "S1", RoomID: "R2", EnlisteeID: "e-102", EnlisteeName: "Carol Example", PackLocation: "Shelf-2"},
		}
		for _, s := range samples {
			id, err := svc.RecordEntry(ctx, s)
			if err != nil {
				return fmt.Errorf("seed entry for %s: %w", s.EnlisteeName, err)
			}
			fmt.Printf(">> seeded visit %s (%s %s/%s)\n", id, s.EnlisteeName, s.SiteID, s.RoomID)
		}

		return nil
	},
}
