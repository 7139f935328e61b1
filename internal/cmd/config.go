package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/feedgen/internal/config"
	"github.com/telhawk-systems/feedgen/internal/repository"
)

const redacted = "xxxxx"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(redactConfig(*cfg))
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func redactConfig(c config.Config) config.Config {
	if c.Database.URL != "" {
		c.Database.URL = repository.RedactConnString(c.Database.URL)
	}
	if c.Database.Postgres.Password != "" {
		c.Database.Postgres.Password = redacted
	}
	if c.NATS.Password != "" {
		c.NATS.Password = redacted
	}
	if c.NATS.Token != "" {
		c.NATS.Token = redacted
	}
	if c.Redis.URL != "" {
		c.Redis.URL = repository.RedactConnString(c.Redis.URL)
	}
	return c
}

func init() {
	rootCmd.AddCommand(configCmd)
}
