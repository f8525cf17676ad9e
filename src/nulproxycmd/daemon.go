package nulproxycmd

import (
	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"gopkg.in/yaml.v3"

	"go.nulproxy.org/nulproxy/src/nulproxyd"
)

func newDaemonCmd() *cobra.Command {
	var configPath string
	var listenAddr, upstreamAddr, apiAddr string
	c := &cobra.Command{
		Use:   "daemon",
		Short: "runs the nulproxy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := nulproxyd.DefaultConfig()
			if configPath != "" {
				c2, err := nulproxyd.LoadConfig(configPath)
				if err != nil {
					return err
				}
				config = *c2
				logctx.Infof(ctx, "using config from path: %v", configPath)
			}
			if listenAddr != "" {
				config.ListenAddr = listenAddr
			}
			if upstreamAddr != "" {
				config.UpstreamAddr = upstreamAddr
			}
			if apiAddr != "" {
				config.APIAddr = apiAddr
			}
			params, err := nulproxyd.MakeParams(configPath, config)
			if err != nil {
				return err
			}
			d := nulproxyd.New(*params)
			return d.Run(ctx)
		},
	}
	c.Flags().StringVar(&configPath, "config", "", "--config=./path/to/config.yaml")
	c.Flags().StringVar(&listenAddr, "listen", "", "--listen=0.0.0.0:7777")
	c.Flags().StringVar(&upstreamAddr, "upstream", "", "--upstream=host:port")
	c.Flags().StringVar(&apiAddr, "api", "", "--api=127.0.0.1:6630")
	return c
}

func newCreateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-config",
		Short: "creates a new default config and writes it to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := nulproxyd.DefaultConfig()
			data, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			out.Write(data)
			return nil
		},
	}
}
