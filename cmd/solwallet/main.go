package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solwallet",
		Usage: "Solana devnet wallet dashboard CLI",
		Description: `A command-line tool for the solwallet dashboard.

Use the wallet and account commands to work directly against a Solana cluster,
and the client commands to drive a running dashboard server over HTTP.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Local key management
			{
				Name:  "wallet",
				Usage: "Key management commands",
				Subcommands: []*cli.Command{
					keygenCommand(),
					addressCommand(),
				},
			},
			// Direct RPC commands
			{
				Name:  "account",
				Usage: "Account inspection commands (talks to the RPC endpoint directly)",
				Subcommands: []*cli.Command{
					balanceCommand(),
					historyCommand(),
					showCommand(),
				},
			},
			createTokenCommand(),
			// Client commands (HTTP API)
			clientCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC endpoint",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   rpc.DevNet_RPC,
			},
			&cli.StringFlag{
				Name:    "cluster",
				Usage:   "Cluster name used for explorer links",
				EnvVars: []string{"SOLANA_CLUSTER"},
				Value:   "devnet",
			},
			&cli.StringFlag{
				Name:    "explorer-url",
				Usage:   "Block explorer base URL",
				EnvVars: []string{"EXPLORER_URL"},
				Value:   "https://explorer.solana.com",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Dashboard server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
