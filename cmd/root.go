package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

func newRootCommand() *cobra.Command {
	cfg, envErr := loadCLIConfig()

	rootCmd := &cobra.Command{
		Use:          "simpleauth",
		Short:        "SimpleAuth CLI",
		Long:         "CLI for inspecting and driving a persisted SimpleAuth session.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envErr
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Store, "store", cfg.Store, "Session store backend: memory, file, redis or postgres. Env: SIMPLEAUTH_STORE.")
	flags.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "Session file for the file backend. Env: SIMPLEAUTH_STORE_PATH.")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the redis backend. Env: SIMPLEAUTH_REDIS_ADDR.")
	flags.StringVar(&cfg.RedisKey, "redis-key", cfg.RedisKey, "Redis hash key holding the session. Env: SIMPLEAUTH_REDIS_KEY.")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres DSN for the postgres backend. Env: SIMPLEAUTH_DATABASE_URL.")
	flags.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Postgres session namespace. Env: SIMPLEAUTH_NAMESPACE.")
	flags.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "HS256 key enabling the token authenticator. Env: SIMPLEAUTH_TOKEN_SECRET.")
	flags.StringVar(&cfg.TokenIssuer, "token-issuer", cfg.TokenIssuer, "Required token issuer. Env: SIMPLEAUTH_TOKEN_ISSUER.")
	flags.StringVar(&cfg.UsersFile, "users-file", cfg.UsersFile, "JSON object of identification to password hash enabling the password authenticator. Env: SIMPLEAUTH_USERS_FILE.")
	flags.IntVarP(&cfg.Verbosity, "verbose", "v", cfg.Verbosity, "Log verbosity. Env: SIMPLEAUTH_VERBOSITY.")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of SimpleAuth CLI",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
	rootCmd.AddCommand(
		newLoginCommand(&cfg),
		newStatusCommand(&cfg),
		newLogoutCommand(&cfg),
		newHashPasswordCommand(),
		newMigrateCommand(&cfg, envErr),
	)

	return rootCmd
}

func Execute() error {
	return newRootCommand().ExecuteContext(context.Background())
}
