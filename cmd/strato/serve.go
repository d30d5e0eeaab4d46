package main

import (
	"net"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spechtlabs/strato/pkg/gossip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	serveCmd.Flags().Bool("tui", false, "Show the live cluster inspector instead of running headless")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cluster membership daemon",
	Long: `The serve command runs the gossip membership daemon of a strato node.
It joins the cluster through the configured seed peers and keeps the local
endpoint state table converged with the rest of the ring.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		listener, err := net.Listen("tcp", viper.GetString("gossip.listenAddr"))
		if err != nil {
			return err
		}
		defer func() { _ = listener.Close() }()

		advertiseAddr := viper.GetString("gossip.advertiseAddr")
		if advertiseAddr == "" {
			advertiseAddr = listener.Addr().String()
		}

		seeds := make([]gossip.NodeID, 0)
		for _, seed := range viper.GetStringSlice("gossip.seeds") {
			seeds = append(seeds, gossip.NodeID(seed))
		}

		transport := gossip.NewTCPTransport(listener)
		gossiper := gossip.New(gossip.NodeID(advertiseAddr), transport,
			gossip.WithSeed(seeds...),
			gossip.WithAdvertiseAddr(advertiseAddr),
			gossip.WithGossipInterval(viper.GetDuration("gossip.interval")),
			gossip.WithRoundTimeout(viper.GetDuration("gossip.roundTimeout")),
			gossip.WithPhiThreshold(viper.GetFloat64("gossip.phiThreshold")),
			gossip.WithDetectorWindowSize(viper.GetInt("gossip.detectorWindow")),
		)

		go transport.Serve(ctx, gossiper)
		go gossiper.Start(ctx)

		if err := gossiper.BumpLocal(ctx, gossip.StateKeyStatus, []byte("UP")); err != nil {
			return err
		}
		if err := gossiper.BumpLocal(ctx, gossip.StateKeyAddress, []byte(advertiseAddr)); err != nil {
			return err
		}

		showTui, _ := cmd.Flags().GetBool("tui")
		if !showTui {
			<-ctx.Done()
			return nil
		}

		model := newClusterModel(gossiper)
		p := tea.NewProgram(model, tea.WithAltScreen())

		go func() {
			<-ctx.Done()
			p.Quit()
		}()

		if _, err := p.Run(); err != nil {
			return err
		}

		return nil
	},
}
