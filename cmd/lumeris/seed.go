package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lumeris/hub/internal/domain"
	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/store"
)

// fixtureUser is one user's records in a fixtures file. Field names follow
// the JSON names of the domain types.
type fixtureUser struct {
	Profile      domain.Profile       `json:"profile"`
	Gaming       *domain.GamingStats  `json:"gaming"`
	Portfolio    *domain.Portfolio    `json:"portfolio"`
	Transactions []domain.Transaction `json:"transactions"`
	Activity     []domain.Activity    `json:"activity"`
}

type fixtureFile struct {
	Users []fixtureUser `json:"users"`
}

// parseFixtures decodes YAML into generic values and re-encodes them as JSON
// so the domain types' json tags drive field mapping.
func parseFixtures(data []byte) (*fixtureFile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var f fixtureFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load YAML fixtures into the Postgres record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer pg.Close()
			return loadFixtures(ctx, file, pg)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Fixtures file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadFixtures(ctx context.Context, path string, records store.RecordStore) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	f, err := parseFixtures(data)
	if err != nil {
		return fmt.Errorf("parse fixtures: %w", err)
	}

	for _, u := range f.Users {
		userID := u.Profile.UserID
		if userID == "" {
			return fmt.Errorf("fixture user without userId")
		}
		if err := records.SaveProfile(ctx, &u.Profile); err != nil {
			return err
		}
		if u.Gaming != nil {
			u.Gaming.UserID = userID
			if err := records.SaveGamingStats(ctx, u.Gaming); err != nil {
				return err
			}
		}
		if u.Portfolio != nil {
			u.Portfolio.UserID = userID
			if err := records.SavePortfolio(ctx, u.Portfolio); err != nil {
				return err
			}
		}
		for i := range u.Transactions {
			if err := records.SaveTransaction(ctx, userID, &u.Transactions[i]); err != nil {
				return err
			}
		}
		for i := range u.Activity {
			u.Activity[i].UserID = userID
			if err := records.LogActivity(ctx, &u.Activity[i]); err != nil {
				return err
			}
		}
	}
	logging.Op().Info("fixtures loaded", "path", path, "users", len(f.Users))
	return nil
}
