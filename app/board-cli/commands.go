package main

import (
	"context"
	"fmt"
	"github.com/spf13/cobra"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/business/domain/tick"
	"github.com/tickboard/board/entities"
	"golang.org/x/sync/errgroup"
	"strconv"
	"strings"
)

type status struct {
	Sequence  uint64
	Message   string
	Active    bool
	TickTypes []entities.TickType
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sequence, message, active flag and tick types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := fetchStatus(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sequence: %d\n", s.Sequence)
			fmt.Fprintf(out, "message:  %s\n", s.Message)
			fmt.Fprintf(out, "active:   %t\n", s.Active)
			printTickTypes(cmd, s.TickTypes)
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, opts *RootOptions) (*status, error) {
	client := newReadClient(opts)
	var s status

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		s.Sequence, err = client.GetSequence(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		s.Message, err = client.GetMessage(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		s.Active, err = client.GetActive(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		s.TickTypes, err = client.GetTickTypes(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

func NewTicksCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ticks",
		Short: "List the tick types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tickTypes, err := newReadClient(opts).GetTickTypes(cmd.Context())
			if err != nil {
				return err
			}
			printTickTypes(cmd, tickTypes)
			return nil
		},
	}
}

func printTickTypes(cmd *cobra.Command, tickTypes []entities.TickType) {
	for _, tt := range tickTypes {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", tt.ID, tt.Tick)
	}
}

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the ticks of the current day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newReadClient(opts)
			out := cmd.OutOrStdout()
			if !compact {
				history, err := client.GetTickHistory(cmd.Context())
				if err != nil {
					return err
				}
				for _, entry := range history {
					fmt.Fprintf(out, "%6d  %s  %d\n", entry.ID, entry.Time, entry.Tick)
				}
				return nil
			}

			data, err := client.GetCompactTickHistory(cmd.Context())
			if err != nil {
				return err
			}
			records := make([]tick.Record, tick.MaxRecords)
			n, err := tick.Decode(data, records)
			if err != nil {
				return fmt.Errorf("decoding compact history: %w", err)
			}
			for _, record := range records[:n] {
				fmt.Fprintf(out, "%02d:%02d  %d\n", record.Hour, record.Minute, record.Type)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "fetch and decode the compact binary history")
	return cmd
}

func NewSetMessageCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-message <message>",
		Short: "Set the board message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newSigningClient(opts)
			if err != nil {
				return err
			}
			message := strings.Join(args, " ")
			if err := client.SetMessage(cmd.Context(), message); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "message set to %q\n", message)
			return nil
		},
	}
}

func NewSetActiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-active <true|false>",
		Short: "Set the active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("invalid active value %q", args[0])
			}
			return setActive(cmd, opts, active)
		},
	}
}

func NewToggleActiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-active",
		Short: "Invert the active flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := newReadClient(opts).GetActive(cmd.Context())
			if err != nil {
				return err
			}
			return setActive(cmd, opts, !active)
		},
	}
}

func setActive(cmd *cobra.Command, opts *RootOptions, active bool) error {
	client, err := newSigningClient(opts)
	if err != nil {
		return err
	}
	if err := client.SetActive(cmd.Context(), active); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "active set to %t\n", active)
	return nil
}

func NewTickCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick <type-id>",
		Short: "Record a tick of the given type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tickType, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid tick type %q", args[0])
			}
			client, err := newSigningClient(opts)
			if err != nil {
				return err
			}
			if err := client.TriggerTick(cmd.Context(), uint8(tickType)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tick %d recorded\n", tickType)
			return nil
		},
	}
}

func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 key pair",
		Long:  "Generates a key pair. The public key goes into the server configuration, the secret key stays with the signer.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secretKey, publicKey, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "secret key: %s\npublic key: %s\n", secretKey, publicKey)
			return nil
		},
	}
}
