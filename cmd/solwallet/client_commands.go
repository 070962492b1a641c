package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/brojonat/solwallet/client"
	"github.com/brojonat/solwallet/service/config"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for driving a running dashboard server",
		Subcommands: []*cli.Command{
			stateCommand(),
			adaptersCommand(),
			connectCommand(),
			disconnectCommand(),
			copyAddressCommand(),
			clientCreateTokenCommand(),
			refreshCommand(),
			endpointCommand(),
			watchCommand(),
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger())
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the dashboard state",
		Action: func(c *cli.Context) error {
			state, err := newClient(c).State(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get state: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, state)
			}
			printState(c, state)
			return nil
		},
	}
}

func adaptersCommand() *cli.Command {
	return &cli.Command{
		Name:  "adapters",
		Usage: "List the wallet adapters known to the server",
		Action: func(c *cli.Context) error {
			adapters, err := newClient(c).Adapters(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list adapters: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, adapters)
			}
			for _, a := range adapters {
				status := "not installed"
				if a.Ready {
					status = "ready"
				}
				if a.Active {
					status = "connected"
				}
				fmt.Fprintf(c.App.Writer, "%-14s %s\n", a.Name, status)
			}
			return nil
		},
	}
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect a wallet adapter",
		ArgsUsage: "ADAPTER",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("adapter name is required")
			}
			identity, err := newClient(c).Connect(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Connected %s\n", identity)
			return nil
		},
	}
}

func disconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect the wallet",
		Action: func(c *cli.Context) error {
			if err := newClient(c).Disconnect(c.Context); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Disconnected")
			return nil
		},
	}
}

func copyAddressCommand() *cli.Command {
	return &cli.Command{
		Name:  "copy-address",
		Usage: "Print the connected account's full address",
		Action: func(c *cli.Context) error {
			address, err := newClient(c).CopyAddress(c.Context)
			if err != nil {
				return fmt.Errorf("failed to copy address: %w", err)
			}
			fmt.Fprintln(c.App.Writer, address)
			return nil
		},
	}
}

func clientCreateTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-token",
		Usage: "Create a token mint account with the connected wallet",
		Action: func(c *cli.Context) error {
			token, err := newClient(c).CreateToken(c.Context)
			if err != nil {
				return fmt.Errorf("token creation failed: %w", err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, token)
			}
			fmt.Fprintf(c.App.Writer, "✓ Token created\n")
			fmt.Fprintf(c.App.Writer, "  Mint:      %s\n", token.Mint)
			fmt.Fprintf(c.App.Writer, "  Signature: %s\n", token.Signature)
			fmt.Fprintf(c.App.Writer, "  Explorer:  %s\n", token.ExplorerURL)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Re-fetch balance and transaction history",
		Action: func(c *cli.Context) error {
			if err := newClient(c).Refresh(c.Context); err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Refresh requested")
			return nil
		},
	}
}

func endpointCommand() *cli.Command {
	return &cli.Command{
		Name:      "endpoint",
		Usage:     "Switch the server's network endpoint",
		ArgsUsage: "CLUSTER [RPC_URL]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("cluster is required")
			}
			endpoint := client.Endpoint{Cluster: c.Args().Get(0), RPCURL: c.Args().Get(1)}
			if endpoint.RPCURL == "" {
				rpcURL, ok := config.ClusterRPCURL(endpoint.Cluster)
				if !ok {
					return fmt.Errorf("RPC_URL is required for cluster %q", endpoint.Cluster)
				}
				endpoint.RPCURL = rpcURL
			}
			if _, err := url.ParseRequestURI(endpoint.RPCURL); err != nil {
				return fmt.Errorf("invalid RPC URL: %w", err)
			}

			if err := newClient(c).SwitchEndpoint(c.Context, endpoint); err != nil {
				return fmt.Errorf("failed to switch endpoint: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Switched to %s (%s)\n", endpoint.Cluster, endpoint.RPCURL)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream dashboard notifications",
		ArgsUsage: "[ACCOUNT]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after N notifications (0 streams until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("count")
			received := 0
			return newClient(c).Watch(c.Context, c.Args().Get(0), func(n *client.Notification) bool {
				if c.Bool("json") {
					outputJSON(c.App.Writer, n)
				} else {
					fmt.Fprintf(c.App.Writer, "[%s] %s %s\n", strings.ToUpper(n.Level), n.CreatedAt.Format("15:04:05"), n.Message)
				}
				received++
				return limit == 0 || received < limit
			})
		},
	}
}

func printState(c *cli.Context, state *client.State) {
	w := c.App.Writer
	fmt.Fprintf(w, "Cluster:  %s (%s)\n", state.Cluster, state.RPCURL)
	if !state.Connected {
		fmt.Fprintln(w, "Wallet:   not connected")
		return
	}
	fmt.Fprintf(w, "Account:  %s\n", state.Account)

	switch {
	case state.BalanceLoading:
		fmt.Fprintln(w, "Balance:  loading...")
	case state.BalanceUnavailable || state.Balance == nil:
		fmt.Fprintln(w, "Balance:  unavailable")
	default:
		fmt.Fprintf(w, "Balance:  %s SOL\n", state.Balance.SOL)
	}
	if state.TokenBalance != nil {
		fmt.Fprintf(w, "Token:    %d (decimals %d)\n", state.TokenBalance.Amount, state.TokenBalance.Decimals)
	}

	if state.TransactionsLoading {
		fmt.Fprintln(w, "\nLoading transactions...")
		return
	}
	if len(state.Transactions) == 0 {
		fmt.Fprintln(w, "\nNo transactions found")
		return
	}
	fmt.Fprintf(w, "\n%-14s  %-19s  %-12s  %s\n", "SIGNATURE", "TIME", "FEE (SOL)", "STATUS")
	for _, t := range state.Transactions {
		fmt.Fprintf(w, "%-14s  %-19s  %-12s  %s\n", t.ShortSignature, t.Time, t.Fee, t.Status)
	}
}
