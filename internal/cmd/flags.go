package cmd

import (
	"time"

	humane "github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/strato/pkg/gossip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFileName string

func addServerFlags(cmd *cobra.Command) {
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	cmd.PersistentFlags().StringVarP(&configFileName, "config", "c", "", "Name of the config file")
	_ = cmd.RegisterFlagCompletionFunc("config", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "yaml", "yaml"}, cobra.ShellCompDirectiveDefault
	})

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.SetDefault("debug", false)
	if err := viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().StringP("listen-addr", "a", ":7946", "Address the gossip listener binds to")
	viper.SetDefault("gossip.listenAddr", ":7946")
	if err := viper.BindPFlag("gossip.listenAddr", cmd.PersistentFlags().Lookup("listen-addr")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().String("advertise-addr", "", "Address other nodes reach this node at; defaults to the listen address")
	viper.SetDefault("gossip.advertiseAddr", "")
	if err := viper.BindPFlag("gossip.advertiseAddr", cmd.PersistentFlags().Lookup("advertise-addr")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().StringSlice("seed", []string{}, "Seed peer addresses contacted to join the cluster")
	viper.SetDefault("gossip.seeds", []string{})
	if err := viper.BindPFlag("gossip.seeds", cmd.PersistentFlags().Lookup("seed")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().Duration("gossip-interval", 1*time.Second, "The interval at which to initiate gossip rounds")
	viper.SetDefault("gossip.interval", 1*time.Second)
	if err := viper.BindPFlag("gossip.interval", cmd.PersistentFlags().Lookup("gossip-interval")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().Duration("round-timeout", 3*time.Second, "Soft deadline after which an unfinished gossip round is abandoned")
	viper.SetDefault("gossip.roundTimeout", 3*time.Second)
	if err := viper.BindPFlag("gossip.roundTimeout", cmd.PersistentFlags().Lookup("round-timeout")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().Float64("phi-threshold", gossip.DefaultPhiThreshold, "Accrual suspicion level above which a peer is considered down")
	viper.SetDefault("gossip.phiThreshold", gossip.DefaultPhiThreshold)
	if err := viper.BindPFlag("gossip.phiThreshold", cmd.PersistentFlags().Lookup("phi-threshold")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}

	cmd.PersistentFlags().Int("detector-window", gossip.DefaultDetectorWindowSize, "Sliding window size of the failure detector")
	viper.SetDefault("gossip.detectorWindow", gossip.DefaultDetectorWindowSize)
	if err := viper.BindPFlag("gossip.detectorWindow", cmd.PersistentFlags().Lookup("detector-window")); err != nil {
		panic(humane.Wrap(err, "fatal binding flag", "check that the flag name matches the viper key")) //nolint:nopanic // flag binding errors are programming errors
	}
}
