package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"studio-backend/internal/config"
	"studio-backend/internal/database"
	"studio-backend/internal/models"
	"studio-backend/internal/repository"
	"studio-backend/internal/services"
)

var staffInput services.CreateStaffInput

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage staff accounts",
}

var staffCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staff account",
	Example: `  studio staff create --email desk@studio.example --name "Front Desk" --password s3cretpass
  studio staff create --email owner@studio.example --name Owner --password s3cretpass --role admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDatabaseOnly()
		if err != nil {
			return err
		}

		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Account creation touches neither Redis nor tokens.
		auth := services.NewAuthService(repository.NewStaffRepo(pool), nil, nil, nil)
		staff, err := auth.CreateStaff(cmd.Context(), staffInput)
		if err != nil {
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				for field, msg := range verr.Fields {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field, msg)
				}
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", staff.Role, staff.Email, staff.ID)
		return nil
	},
}

func init() {
	f := staffCreateCmd.Flags()
	f.StringVar(&staffInput.Email, "email", "", "Login email")
	f.StringVar(&staffInput.Password, "password", "", "Initial password")
	f.StringVar(&staffInput.FullName, "name", "", "Full name")
	f.StringVar(&staffInput.Role, "role", models.RoleStaff, "Role: staff or admin")
	staffCreateCmd.MarkFlagRequired("email")
	staffCreateCmd.MarkFlagRequired("password")
	staffCreateCmd.MarkFlagRequired("name")

	staffCmd.AddCommand(staffCreateCmd)
	rootCmd.AddCommand(staffCmd)
}
