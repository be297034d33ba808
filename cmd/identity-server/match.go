package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/clinicops/identity/internal/domain/identity"
)

func matchCmd() *cobra.Command {
	var ids identity.Identifiers

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve identifiers to an existing patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ids == (identity.Identifiers{}) {
				return errors.New("pass at least one of --external-id, --email, --phone, --first-name/--last-name")
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.close()

			return runMatch(cmd.Context(), cmd, identity.NewService(b.patients, logger), ids)
		},
	}
	cmd.Flags().StringVar(&ids.ExternalID, "external-id", "", "External system id")
	cmd.Flags().StringVar(&ids.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&ids.Phone, "phone", "", "Phone number in any format")
	cmd.Flags().StringVar(&ids.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&ids.LastName, "last-name", "", "Last name")
	return cmd
}

type matchOutput struct {
	Matched bool                 `json:"matched"`
	Patient *identity.PatientRef `json:"patient,omitempty"`
}

func runMatch(ctx context.Context, cmd *cobra.Command, svc *identity.Service, ids identity.Identifiers) error {
	ref, err := svc.MatchPatient(ctx, ids)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(matchOutput{Matched: ref != nil, Patient: ref})
}
