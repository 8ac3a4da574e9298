package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/porthorian/simpleauth"
	"github.com/porthorian/simpleauth/pkg/authenticator/password"
	"github.com/porthorian/simpleauth/pkg/authenticator/token"
)

// environment is one opened session plus the authenticators the config enables.
type environment struct {
	session  *simpleauth.Session
	token    *token.Authenticator
	password *password.Authenticator
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openEnvironment(cmd *cobra.Command, cfg *cliConfig) (*environment, error) {
	env := &environment{}
	var factories []simpleauth.Factory

	if cfg.TokenSecret != "" {
		tokenConfig := token.Config{Key: []byte(cfg.TokenSecret), Issuer: cfg.TokenIssuer}
		a, err := token.New(tokenConfig)
		if err != nil {
			return nil, err
		}
		env.token = a
		factories = append(factories, token.Factory(tokenConfig))
	}
	if cfg.UsersFile != "" {
		users, err := loadUsers(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		passwordConfig := password.Config{Users: users}
		a, err := password.New(passwordConfig)
		if err != nil {
			return nil, err
		}
		env.password = a
		factories = append(factories, password.Factory(passwordConfig))
	}

	registry, err := simpleauth.NewRegistry(factories...)
	if err != nil {
		return nil, err
	}

	ctx := commandContext(cmd)
	session, err := simpleauth.New(ctx, simpleauth.Config{
		Registry: registry,
		Logger:   cfg.logger(cmd.ErrOrStderr()),
		Runtime:  cfg.runtime(),
	})
	if err != nil {
		return nil, err
	}
	if err := session.Wait(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}

	env.session = session
	return env, nil
}

func (e *environment) close(cmd *cobra.Command) {
	if err := e.session.Close(); err != nil {
		cmd.PrintErrf("warning: failed to close session cleanly: %v\n", err)
	}
}

func newLoginCommand(cfg *cliConfig) *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var rawToken string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Authenticate with a signed bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd, cfg)
			if err != nil {
				return err
			}
			defer env.close(cmd)

			if env.token == nil {
				return errors.New("token login is disabled: set --token-secret or SIMPLEAUTH_TOKEN_SECRET")
			}
			return login(cmd, env.session, env.token, simpleauth.Credentials{token.CredentialToken: rawToken})
		},
	}
	tokenCmd.Flags().StringVar(&rawToken, "token", "", "Signed JWT to authenticate with.")

	var identification, secret string
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Authenticate with an identification and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd, cfg)
			if err != nil {
				return err
			}
			defer env.close(cmd)

			if env.password == nil {
				return errors.New("password login is disabled: set --users-file or SIMPLEAUTH_USERS_FILE")
			}
			return login(cmd, env.session, env.password, simpleauth.Credentials{
				password.CredentialIdentification: identification,
				password.CredentialPassword:       secret,
			})
		},
	}
	passwordCmd.Flags().StringVar(&identification, "identification", "", "User identification.")
	passwordCmd.Flags().StringVar(&secret, "password", "", "User password.")

	loginCmd.AddCommand(tokenCmd, passwordCmd)
	return loginCmd
}

func login(cmd *cobra.Command, session *simpleauth.Session, authenticator simpleauth.Authenticator, credentials simpleauth.Credentials) error {
	if err := session.Authenticate(commandContext(cmd), authenticator, credentials); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	cmd.Printf("Authenticated with %s\n", session.AuthenticatorName())
	return nil
}

func newStatusCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print whether the persisted session is authenticated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd, cfg)
			if err != nil {
				return err
			}
			defer env.close(cmd)

			if !env.session.IsAuthenticated() {
				cmd.Println("authenticated: false")
				return nil
			}

			content, err := json.Marshal(env.session.Content())
			if err != nil {
				return fmt.Errorf("encode session content: %w", err)
			}
			cmd.Println("authenticated: true")
			cmd.Printf("authenticator: %s\n", env.session.AuthenticatorName())
			cmd.Printf("content: %s\n", content)
			return nil
		},
	}
}

func newLogoutCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(cmd, cfg)
			if err != nil {
				return err
			}
			defer env.close(cmd)

			if !env.session.IsAuthenticated() {
				cmd.Println("No active session.")
				return nil
			}
			if err := env.session.Invalidate(commandContext(cmd)); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			cmd.Println("Session invalidated.")
			return nil
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	var options password.PBKDF2Options
	var secret string

	hashCmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a PBKDF2 hash for a users file entry",
		Long:  "Print a PBKDF2 hash for a users file entry. Reads the password from the first line of stdin when --password is not set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}

			encoded, err := password.NewPBKDF2Hasher(options).Hash(secret)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			cmd.Println(encoded)
			return nil
		},
	}

	hashCmd.Flags().StringVar(&secret, "password", "", "Password to hash.")
	hashCmd.Flags().IntVar(&options.Iterations, "iterations", 0, "PBKDF2 iterations. Defaults to 120000.")
	return hashCmd
}
