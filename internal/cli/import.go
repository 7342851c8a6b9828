package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/reconciler/internal/domain/records"
)

// ImportFile is the layout of a records file:
//
//	manual:
//	  - id: m-1
//	    type: holding
//	    holding: {ticker: AAPL, shares: 100, cost_basis: 150}
//	external:
//	  - id: plaid-123
//	    type: holding
//	    account_id: acct-1
//	    holding: {symbol: AAPL, quantity: 100, price: 190}
//
// Field names match the JSON API. Dates are RFC 3339.
type ImportFile struct {
	Manual   []records.ManualRecord   `json:"manual"`
	External []records.ExternalRecord `json:"external"`
}

// LoadImportFile reads a YAML records file. The YAML is decoded generically
// and re-encoded as JSON so the record types need only one set of tags.
func LoadImportFile(r io.Reader) (*ImportFile, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &ImportFile{}, nil
		}
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert records file: %w", err)
	}

	var file ImportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return &file, nil
}

// assignUser fills blank owners, clears reconciliation state on manual records
// and validates every record before anything is stored.
func (f *ImportFile) assignUser(userID string) error {
	for i := range f.Manual {
		rec := &f.Manual[i]
		if rec.UserID == "" {
			rec.UserID = userID
		}
		if rec.UserID != userID {
			return fmt.Errorf("manual record %d belongs to user %q", i, rec.UserID)
		}
		rec.ResetReconciliation()
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("manual record %d: %w", i, err)
		}
	}
	for i := range f.External {
		rec := &f.External[i]
		if rec.UserID == "" {
			rec.UserID = userID
		}
		if rec.UserID != userID {
			return fmt.Errorf("external record %d belongs to user %q", i, rec.UserID)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("external record %d: %w", i, err)
		}
	}
	return nil
}

func newImportCommand(flags *GlobalFlags) *cobra.Command {
	var userID, path string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import manual and aggregator records from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			file, err := LoadImportFile(f)
			if err != nil {
				return err
			}
			if err := file.assignUser(userID); err != nil {
				return err
			}

			a, err := openApp(cmd, flags, "import")
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			for i := range file.Manual {
				if err := a.store.InsertManual(ctx, &file.Manual[i]); err != nil {
					return fmt.Errorf("failed to import manual record %s: %w", file.Manual[i].ID, err)
				}
			}
			for i := range file.External {
				if err := a.store.UpsertExternal(ctx, &file.External[i]); err != nil {
					return fmt.Errorf("failed to import external record %s: %w", file.External[i].ID, err)
				}
			}

			a.logger.Info("Imported records", "user_id", userID, "manual", len(file.Manual), "external", len(file.External))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d manual and %d external records for %s\n",
				len(file.Manual), len(file.External), userID)
			return nil
		},
	}
	userFlag(cmd, &userID)
	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML records file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
