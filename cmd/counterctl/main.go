// cmd/counterctl is the operator CLI, built with Cobra.
//
// Usage:
//
//	counterctl get mykey --gateway --server http://localhost:8000
//	counterctl increment mykey     --server http://localhost:7000
//	counterctl put mykey 5         --server http://localhost:9000
//	counterctl delete mykey        --server http://localhost:9000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/countershard/countershard/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
	gateway    bool
)

func main() {
	root := &cobra.Command{
		Use:   "counterctl",
		Short: "Operator CLI for the sharded counter service",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:9000", "target service address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")
	root.PersistentFlags().BoolVar(&gateway, "gateway", false,
		"target is a gateway, not a store node (affects 'get')")

	root.AddCommand(getCmd(), incrementCmd(), putCmd(), deleteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read a counter's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			ctx := context.Background()

			if gateway {
				resp, err := c.GetCounter(ctx, args[0])
				if err != nil {
					return err
				}
				prettyPrint(resp)
				return nil
			}

			resp, err := c.Get(ctx, args[0])
			if err == client.ErrNotFound {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func incrementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "increment <key>",
		Short: "Enqueue an increment job against a queue service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			status, err := c.Increment(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write a counter's value directly on a store node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key directly on a store node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
