package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/config"
	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the OS keychain",
		Long:  "Secrets are stored under the keychain service " + config.KeyringService + ".\nKnown names: " + strings.Join(config.SecretNames, ", "),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret read from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			value := strings.TrimSpace(line)
			if value == "" {
				if err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
				return errors.New("secret value is empty")
			}
			if err := config.SetSecret(args[0], value); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return err
		},
	}, &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteSecret(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	})
	return cmd
}
