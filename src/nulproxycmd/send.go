package nulproxycmd

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var wait time.Duration
	c := &cobra.Command{
		Use:   "send <addr> <msg>...",
		Short: "send writes NUL-terminated messages to addr and prints the replies",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, msgs := args[0], args[1:]
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()
			for _, msg := range msgs {
				if _, err := conn.Write(append([]byte(msg), 0)); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			br := bufio.NewReader(conn)
			conn.SetReadDeadline(time.Now().Add(wait))
			for range msgs {
				reply, err := br.ReadString(0)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\n", trimNUL(reply))
			}
			return nil
		},
	}
	c.Flags().DurationVar(&wait, "wait", 3*time.Second, "how long to wait for replies")
	return c
}
