package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/external/boardclient"
	"os"
	"time"
)

const (
	urlEnv       = "TICKBOARD_CLIENT_URL"
	secretKeyEnv = "TICKBOARD_SECRET_KEY"
	defaultURL   = "http://localhost:3000"
)

type RootOptions struct {
	URL       string
	SecretKey string
	Timeout   time.Duration
	Attempts  int
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "board-cli",
		Short:         "Read and mutate the tick board",
		Long:          "Reads the board state and submits signed mutations. Defaults come from " + urlEnv + " and " + secretKeyEnv + ".",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	url := os.Getenv(urlEnv)
	if url == "" {
		url = defaultURL
	}
	cmd.PersistentFlags().StringVar(&opts.URL, "url", url, "board server url")
	cmd.PersistentFlags().StringVar(&opts.SecretKey, "key", os.Getenv(secretKeyEnv), "hex encoded secp256k1 secret key")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "timeout per request")
	cmd.PersistentFlags().IntVar(&opts.Attempts, "attempts", 3, "attempts per mutation when the sequence moved")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTicksCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSetMessageCommand(opts))
	cmd.AddCommand(NewSetActiveCommand(opts))
	cmd.AddCommand(NewToggleActiveCommand(opts))
	cmd.AddCommand(NewTickCommand(opts))
	cmd.AddCommand(NewKeygenCommand())
	cmd.AddCommand(NewTUICommand(opts))

	return cmd
}

func newReadClient(opts *RootOptions) *boardclient.Client {
	return boardclient.NewClient(opts.URL, nil, opts.Timeout, opts.Attempts)
}

func newSigningClient(opts *RootOptions) (*boardclient.Client, error) {
	if opts.SecretKey == "" {
		return nil, fmt.Errorf("no secret key, set --key or %s", secretKeyEnv)
	}
	signer, err := auth.NewSigner(opts.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("loading secret key: %w", err)
	}
	return boardclient.NewClient(opts.URL, signer, opts.Timeout, opts.Attempts), nil
}
