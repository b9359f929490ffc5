package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/orgstore/internal/server"
)

var (
	accountabilityCmd = &cobra.Command{
		Use:   "accountability",
		Short: "Manage accountabilities on a running server",
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Manage version chains on a running server",
	}

	serverAddr string
	actingUser string
	timeout    time.Duration
)

func init() {
	for _, c := range []*cobra.Command{accountabilityCmd, versionCmd} {
		c.PersistentFlags().StringVar(&serverAddr, "addr", "", "server address (default localhost:<server.port>)")
		c.PersistentFlags().StringVarP(&actingUser, "user", "u", os.Getenv("USER"), "acting user sent as x-user")
		c.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	}

	createCmd := &cobra.Command{
		Use:   "create <type> <parent> <child>",
		Short: "Register an accountability between two parties",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.CreateAccountability(ctx, args[0], args[1], args[2])
			})
		},
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accountabilities, optionally of one party",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			party, _ := cmd.Flags().GetString("party")
			limit, _ := cmd.Flags().GetInt("limit")
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.Call(ctx, server.MethodListAccountabilities, map[string]interface{}{"party_id": party, "limit": limit})
			})
		},
	}
	listCmd.Flags().String("party", "", "only accountabilities this party takes part in")
	listCmd.Flags().Int("limit", 0, "maximum number of results (0 = all)")
	accountabilityCmd.AddCommand(createCmd, listCmd)

	insertCmd := &cobra.Command{
		Use:   "insert <accountability> <begin-date>",
		Short: "Record a new state (dates as YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, _ := cmd.Flags().GetString("end")
			erased, _ := cmd.Flags().GetBool("erased")
			reason, _ := cmd.Flags().GetString("justification")
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.InsertVersion(ctx, args[0], args[1], end, erased, reason)
			})
		},
	}
	insertCmd.Flags().String("end", "", "end date; open-ended when empty")
	insertCmd.Flags().Bool("erased", false, "mark the accountability as erased")
	insertCmd.Flags().String("justification", "", "reason for the change")

	historyCmd := &cobra.Command{
		Use:   "history <accountability>",
		Short: "Show the chain newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.History(ctx, args[0])
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <version>",
		Short: "Delete a head version, restoring its predecessor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.DeleteVersion(ctx, args[0])
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <accountability>",
		Short: "Check chain invariants and report duplicate states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.Call(ctx, server.MethodVerifyChain, map[string]interface{}{"accountability_id": args[0]})
			})
		},
	}

	asOfCmd := &cobra.Command{
		Use:   "as-of <accountability> <RFC3339 instant>",
		Short: "Show the version that was current at an instant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.Call(ctx, server.MethodVersionAsOf, map[string]interface{}{"accountability_id": args[0], "as_of": args[1]})
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show server statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) (*structpb.Struct, error) {
				return c.Call(ctx, server.MethodGetStats, nil)
			})
		},
	}

	versionCmd.AddCommand(insertCmd, historyCmd, deleteCmd, verifyCmd, asOfCmd, statsCmd)
}

// withClient dials the server, runs call and prints the response as JSON
func withClient(cmd *cobra.Command, call func(context.Context, *server.Client) (*structpb.Struct, error)) error {
	addr := serverAddr
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := call(ctx, server.NewClient(conn, actingUser))
	if err != nil {
		return err
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
