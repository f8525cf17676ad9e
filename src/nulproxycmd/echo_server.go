package nulproxycmd

import (
	"bufio"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
)

func newEchoServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "echo-server <addr>",
		Short: "echo-server accepts connections and echoes every message back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := net.Listen("tcp", args[0])
			if err != nil {
				return err
			}
			defer l.Close()
			logctx.Infof(ctx, "echo server listening on %v", l.Addr())
			for {
				conn, err := l.Accept()
				if err != nil {
					return err
				}
				go echoConn(conn)
			}
		},
	}
}

func echoConn(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		msg, err := br.ReadString(0)
		if err != nil {
			if err != io.EOF {
				logctx.Errorf(ctx, "echo: read from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if _, err := conn.Write([]byte(msg)); err != nil {
			logctx.Errorf(ctx, "echo: write to %v: %v", conn.RemoteAddr(), err)
			return
		}
		logctx.Infof(ctx, "echoed %d bytes to %v", len(msg), conn.RemoteAddr())
	}
}

func trimNUL(msg string) string {
	return strings.TrimSuffix(msg, "\x00")
}
