package nulproxycmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.nulproxy.org/nulproxy/src/nulproxyd"
)

func newStatusCmd() *cobra.Command {
	var apiAddr string
	c := &cobra.Command{
		Use:   "status",
		Short: "prints the status of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := nulproxyd.NewAdminClient(apiAddr)
			res, err := client.GetStatus(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "LISTENERS:\n")
			for _, a := range res.ListenAddrs {
				fmt.Fprintf(w, "\t%s\n", a)
			}
			fmt.Fprintf(w, "SESSIONS:\n")
			for _, s := range res.Sessions {
				fmt.Fprintf(w, "\t%s -> %s\n", s.LocalAddr, s.RemoteAddr)
				fmt.Fprintf(w, "\t\tlocal rx=%d tx=%d\tremote rx=%d tx=%d\n",
					s.LocalRx, s.LocalTx, s.RemoteRx, s.RemoteTx)
			}
			return nil
		},
	}
	c.Flags().StringVar(&apiAddr, "api", nulproxyd.DefaultAPIAddr, "--api=127.0.0.1:6630")
	return c
}
