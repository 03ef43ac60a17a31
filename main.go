package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/curve25519"

	"veiltun/infrastructure/configuration"
	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/logging"
	"veiltun/presentation"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execute() error {
	root := &cobra.Command{
		Use:           "veiltun",
		Short:         "Encrypted point-to-point tunnel node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), genkeyCmd())
	return root.Execute()
}

func runCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node from a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Read(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tun := presentation.NewStdioTun(os.Stdin, os.Stdout)
			return presentation.NewNodeRunner(logger, cfg, tun).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to node configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to console")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a base64 X25519 key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv := make([]byte, keys.KeySize)
			if _, err := rand.Read(priv); err != nil {
				return fmt.Errorf("generate private key: %w", err)
			}
			pub, err := curve25519.X25519(priv, curve25519.Basepoint)
			if err != nil {
				return fmt.Errorf("derive public key: %w", err)
			}

			fmt.Printf("PrivateKey: %s\n", base64.StdEncoding.EncodeToString(priv))
			fmt.Printf("PublicKey:  %s\n", base64.StdEncoding.EncodeToString(pub))
			return nil
		},
	}
}
