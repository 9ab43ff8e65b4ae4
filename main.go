package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"

	"policy-console/internal/config"
	"policy-console/internal/console"
	"policy-console/internal/handler"
	"policy-console/internal/logging"
	"policy-console/internal/model"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "policy-console",
		Short: "Insurance policy console backed by a mock REST API",
		Long: `policy-console serves and manages insurance policies stored in a mock
REST backend. Policies the backend cannot store are kept in a local overlay
for the lifetime of the process.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $"+config.ConfigPathEnvVar+")")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the policy JSON API",
		RunE:  serve,
	}

	policiesCmd := &cobra.Command{
		Use:   "policies",
		Short: "List and edit policies",
	}
	policiesCmd.AddCommand(newListPoliciesCmd(), newCreatePolicyCmd(), newUpdatePolicyCmd(), newDeletePolicyCmd())

	root.AddCommand(serveCmd, policiesCmd, newClientsCmd())
	return root
}

func newClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			clients, err := s.Clients(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), clients)
		},
	}
}

func newListPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			list, err := s.Policies(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
}

func newCreatePolicyCmd() *cobra.Command {
	var input model.PolicyInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := input.Validate(); err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			p, err := s.CreatePolicy(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	bindInputFlags(cmd, &input)
	return cmd
}

func newUpdatePolicyCmd() *cobra.Command {
	var input model.PolicyInput
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid policy id %q", args[0])
			}
			if err := input.Validate(); err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			p, err := s.UpdatePolicy(cmd.Context(), id, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	bindInputFlags(cmd, &input)
	return cmd
}

func newDeletePolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid policy id %q", args[0])
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			deleted, err := s.DeletePolicy(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.DeleteResponse{ID: deleted})
		},
	}
}

func bindInputFlags(cmd *cobra.Command, in *model.PolicyInput) {
	cmd.Flags().StringVar(&in.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&in.InsuranceType, "type", "", "Auto, Health, Property or Life")
	cmd.Flags().StringVar(&in.Coverage, "coverage", "", "Full, Standard or Basic")
	cmd.Flags().IntVar(&in.Premium, "premium", 0, "premium")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "end date, YYYY-MM-DD")
	cmd.Flags().StringVar(&in.Status, "status", "", "Active or Completed")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func openSession() (*console.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return console.Open(cfg)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := console.Open(cfg)
	if err != nil {
		return err
	}

	if err := s.Prefetch(cmd.Context()); err != nil {
		logging.Warn().Err(err).Msg("Prefetch failed")
	}

	logging.Info().
		Str("port", cfg.Server.Port).
		Str("backend", cfg.Backend.BaseURL).
		Str("mode", cfg.Service.Mode).
		Msg("Policy console starting")
	return fasthttp.ListenAndServe(":"+cfg.Server.Port, handler.New(s).Handle)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
