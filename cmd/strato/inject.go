package main

import (
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spechtlabs/strato/pkg/gossip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	injectCmd.Flags().Duration("change-interval", 3*time.Second, "The interval at which to bump the local load figure")
}

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Join the cluster and keep introducing state changes",
	Long: `The inject command joins the cluster like a regular node and bumps a local
application state key on a fixed interval. Useful to watch deltas propagate
through the ring.`,
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

		changeInterval, err := cmd.Flags().GetDuration("change-interval")
		if err != nil {
			return err
		}

		go func() {
			ticker := time.NewTicker(changeInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					load := fmt.Sprintf("%d", rand.IntN(100))
					_ = gossiper.BumpLocal(ctx, gossip.StateKeyLoad, []byte(load))
				}
			}
		}()

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
