package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brojonat/solwallet/service/account"
	"github.com/brojonat/solwallet/service/dashboard"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// newRPCClient is swapped out in tests.
var newRPCClient = solana.NewRPCClient

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new 24-word mnemonic and its account address",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "outfile",
				Aliases: []string{"o"},
				Usage:   "Write the keypair to FILE in solana-keygen format",
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Optional BIP-39 passphrase",
				EnvVars: []string{"WALLET_PASSPHRASE"},
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing outfile",
			},
		},
		Action: func(c *cli.Context) error {
			outfile := c.String("outfile")
			if outfile != "" && !c.Bool("force") {
				if _, err := os.Stat(outfile); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", outfile)
				}
			}

			mnemonic, err := wallet.GenerateMnemonic()
			if err != nil {
				return err
			}
			key, err := wallet.KeyFromMnemonic(mnemonic, c.String("passphrase"))
			if err != nil {
				return err
			}

			if outfile != "" {
				if err := wallet.WriteKeygenFile(outfile, key); err != nil {
					return err
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{
					"mnemonic": mnemonic,
					"address":  key.PublicKey().String(),
					"outfile":  outfile,
				})
			}

			fmt.Fprintf(c.App.Writer, "Address:  %s\n", key.PublicKey())
			fmt.Fprintf(c.App.Writer, "Mnemonic: %s\n", mnemonic)
			if outfile != "" {
				fmt.Fprintf(c.App.Writer, "Keypair written to %s\n", outfile)
			}
			fmt.Fprintf(c.App.Writer, "\nStore the mnemonic somewhere safe. It is the only way to recover this wallet.\n")
			return nil
		},
	}
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Print the account address for a keypair file or mnemonic",
		Description: `Reads the key from --keypair, --mnemonic or WALLET_MNEMONIC.
Without either, the mnemonic is read from the terminal without echo.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "solana-keygen keypair file",
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Usage:   "BIP-39 mnemonic",
				EnvVars: []string{"WALLET_MNEMONIC"},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Optional BIP-39 passphrase",
				EnvVars: []string{"WALLET_PASSPHRASE"},
			},
		},
		Action: func(c *cli.Context) error {
			var key solanago.PrivateKey
			var err error

			if path := c.String("keypair"); path != "" {
				key, err = solanago.PrivateKeyFromSolanaKeygenFile(path)
				if err != nil {
					return fmt.Errorf("failed to read keypair: %w", err)
				}
			} else {
				mnemonic := c.String("mnemonic")
				if mnemonic == "" {
					mnemonic, err = readSecret(c, "Mnemonic: ")
					if err != nil {
						return err
					}
				}
				key, err = wallet.KeyFromMnemonic(normalizeMnemonic(mnemonic), c.String("passphrase"))
				if err != nil {
					return err
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"address": key.PublicKey().String()})
			}
			fmt.Fprintln(c.App.Writer, key.PublicKey().String())
			return nil
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the SOL balance of an account",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			address, err := addressArg(c)
			if err != nil {
				return err
			}

			fetcher := newFetcher(c, 0)
			balance, err := fetcher.Balance(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, balance)
			}
			fmt.Fprintf(c.App.Writer, "%s SOL\n", balance.SOL)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List the most recent transactions of an account",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Number of transactions to list",
				Value:   account.DefaultHistoryLimit,
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression evaluated against each transaction (e.g. 'select(.status == \"Failed\") | .signature')",
			},
		},
		Action: func(c *cli.Context) error {
			address, err := addressArg(c)
			if err != nil {
				return err
			}

			var code *gojq.Code
			if expr := c.String("jq"); expr != "" {
				code, err = compileJQ(expr)
				if err != nil {
					return err
				}
			}

			fetcher := newFetcher(c, c.Int("limit"))
			summaries, err := fetcher.History(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to get transaction history: %w", err)
			}

			rows := make([]dashboard.TransactionRow, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, dashboard.NewTransactionRow(s, c.String("explorer-url"), c.String("cluster")))
			}

			if code != nil {
				return runJQ(c.App.Writer, code, rows)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, rows)
			}

			printTransactionRows(c.App.Writer, rows)
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the balance and recent transactions of an account in one fetch",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Number of transactions to list",
				Value:   account.DefaultHistoryLimit,
			},
		},
		Action: func(c *cli.Context) error {
			address, err := addressArg(c)
			if err != nil {
				return err
			}

			fetcher := newFetcher(c, c.Int("limit"))
			snapshot, err := fetcher.Refresh(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to fetch account: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, snapshot)
			}

			rows := make([]dashboard.TransactionRow, 0, len(snapshot.Transactions))
			for _, s := range snapshot.Transactions {
				rows = append(rows, dashboard.NewTransactionRow(s, c.String("explorer-url"), c.String("cluster")))
			}

			fmt.Fprintf(c.App.Writer, "Account:  %s\n", snapshot.Account)
			fmt.Fprintf(c.App.Writer, "Balance:  %s SOL\n", snapshot.Balance.SOL)
			fmt.Fprintf(c.App.Writer, "\nLast %d transactions\n", fetcher.HistoryLimit())
			printTransactionRows(c.App.Writer, rows)
			return nil
		},
	}
}

func printTransactionRows(w io.Writer, rows []dashboard.TransactionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No transactions found")
		return
	}
	fmt.Fprintf(w, "%-14s  %-19s  %-12s  %s\n", "SIGNATURE", "TIME", "FEE (SOL)", "STATUS")
	for _, r := range rows {
		fmt.Fprintf(w, "%-14s  %-19s  %-12s  %s\n", r.ShortSignature, r.Time, r.Fee, r.Status)
	}
}

func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-token",
		Usage: "Create an SPL token mint account signed by a local keypair",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "keypair",
				Aliases:  []string{"k"},
				Usage:    "solana-keygen keypair file that pays for and owns the mint",
				EnvVars:  []string{"WALLET_KEYPAIR_PATH"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "confirm-timeout",
				Usage: "How long to wait for confirmation",
				Value: 60 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			logger := cliLogger()
			rpcURL := c.String("rpc-url")
			cluster := c.String("cluster")

			session, err := wallet.NewSession(wallet.Config{
				Endpoint: wallet.Endpoint{Cluster: cluster, RPCURL: rpcURL},
				NewClient: func(ep wallet.Endpoint) *solana.Client {
					return solana.NewClient(newRPCClient(ep.RPCURL), ep.Cluster, nil, logger)
				},
				Adapters: []wallet.Adapter{wallet.NewKeygenFileAdapter(c.String("keypair"))},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer session.Close(context.Background())

			ctx := c.Context
			if _, err := session.Connect(ctx, "keygen-file"); err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}

			workflow := mint.NewWorkflow(session, c.Duration("confirm-timeout"), nil, logger)
			res, err := workflow.CreateToken(ctx)
			if err != nil {
				return fmt.Errorf("token creation failed: %w", err)
			}
			explorerURL := solana.ExplorerTxURL(c.String("explorer-url"), res.Signature.String(), cluster)

			balance, balanceErr := workflow.TokenBalance(ctx, res)
			if balanceErr != nil {
				logger.Debug("token balance unavailable", "error", balanceErr)
			}

			if c.Bool("json") {
				out := map[string]interface{}{
					"mint":         res.Mint.String(),
					"signature":    res.Signature.String(),
					"owner":        res.Owner.String(),
					"explorer_url": explorerURL,
				}
				if balance != nil {
					out["token_balance"] = balance
				}
				return outputJSON(c.App.Writer, out)
			}

			fmt.Fprintf(c.App.Writer, "✓ Token created\n")
			fmt.Fprintf(c.App.Writer, "  Mint:      %s\n", res.Mint)
			fmt.Fprintf(c.App.Writer, "  Owner:     %s\n", res.Owner)
			fmt.Fprintf(c.App.Writer, "  Signature: %s\n", res.Signature)
			fmt.Fprintf(c.App.Writer, "  Explorer:  %s\n", explorerURL)
			if balance != nil {
				fmt.Fprintf(c.App.Writer, "  Balance:   %s\n", balance.Display())
			}
			return nil
		},
	}
}

func newFetcher(c *cli.Context, limit int) *account.Fetcher {
	logger := cliLogger()
	client := solana.NewClient(newRPCClient(c.String("rpc-url")), c.String("cluster"), nil, logger)
	return account.NewFetcher(solana.Static(client), limit, account.DefaultConcurrency, nil, logger)
}

func addressArg(c *cli.Context) (solanago.PublicKey, error) {
	if c.NArg() < 1 {
		return solanago.PublicKey{}, fmt.Errorf("account address is required")
	}
	pk, err := solanago.PublicKeyFromBase58(c.Args().Get(0))
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid account address: %w", err)
	}
	return pk, nil
}

// readSecret prompts on the terminal without echo, or reads one line when stdin is not a terminal.
func readSecret(c *cli.Context, prompt string) (string, error) {
	if f, ok := c.App.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.App.ErrWriter, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.App.ErrWriter)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func normalizeMnemonic(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func compileJQ(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return code, nil
}

// runJQ evaluates code against each row and prints every non-null result as a JSON line.
func runJQ(w io.Writer, code *gojq.Code, rows []dashboard.TransactionRow) error {
	for _, row := range rows {
		// gojq only accepts plain JSON values
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		var input interface{}
		if err := json.Unmarshal(data, &input); err != nil {
			return err
		}

		iter := code.Run(input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return fmt.Errorf("jq filter error: %w", err)
			}
			if v == nil {
				continue
			}
			out, err := gojq.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(out))
		}
	}
	return nil
}

func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}
