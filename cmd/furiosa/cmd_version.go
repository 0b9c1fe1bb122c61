package main

import (
	"fmt"

	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/spf13/cobra"
)

func newVersionCmd(c *cli) *cobra.Command {
	var clientOnly bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "client: %s\n", furiosa.Version)
			fmt.Fprintf(w, "endpoint: %s (%s)\n", furiosa.DefaultEndpoint, furiosa.EndpointVariant)
			if clientOnly {
				return nil
			}

			client, err := c.client()
			if err != nil {
				return err
			}
			info, err := client.ServerVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "server: %s (git %s, built %s)\n", info.Version, info.GitHash, info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client", false, "print only the client version")
	return cmd
}
