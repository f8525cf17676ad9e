// Package nulproxycmd implements the nulproxy command line interface.
package nulproxycmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
)

var ctx = func() context.Context {
	ctx := context.Background()
	l, _ := zap.NewProduction()
	ctx = logctx.NewContext(ctx, l)
	return ctx
}()

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "nulproxy",
		Short: "nulproxy: a transparent TCP proxy for NUL-terminated message streams",
	}
	c.AddCommand(newDaemonCmd())
	c.AddCommand(newCreateConfigCmd())
	c.AddCommand(newStatusCmd())
	c.AddCommand(newEchoServerCmd())
	c.AddCommand(newSendCmd())
	return c
}
