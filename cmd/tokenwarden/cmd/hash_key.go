package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokenwarden/tokenwarden/internal/domain/auth"
)

var hashKeyArgon2 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <key>",
	Short: "Hash an API key for the auth config",
	Long: `Hashes a raw API key for use in the auth.keys config section.

By default the key is hashed with SHA-256, which allows constant-time
indexed lookup. Pass --argon2id for a memory-hard hash when the key
material is low entropy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashKeyArgon2 {
			hash, err := auth.HashKeyArgon2id(args[0])
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sha256:"+auth.HashKey(args[0]))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon2, "argon2id", false, "use Argon2id instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}
