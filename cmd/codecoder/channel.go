package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/channelbus"
	"github.com/zero-bot/codecoder/internal/channels"
	"github.com/zero-bot/codecoder/internal/config"
	"github.com/zero-bot/codecoder/internal/sandbox"
	"github.com/zero-bot/codecoder/internal/scrub"
)

var (
	defaultScrubber      = scrub.DefaultScrubber()
	defaultSandboxFilter = sandbox.NewFilter()
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Inspect and manage chat-platform channels",
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured channels and whether they're enabled",
	RunE:  runChannelList,
}

var channelDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check each configured channel's reachability",
	RunE:  runChannelDoctor,
}

var channelStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Run a single channel's supervised listener against the fan-in bus",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelStart,
}

var channelAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add (or enable) a channel in config.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelAdd,
}

var channelRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a channel from config.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelRemove,
}

var channelAddToken string

func init() {
	channelAddCmd.Flags().StringVar(&channelAddToken, "token", "", "channel credential/bot token")
	channelCmd.AddCommand(channelListCmd, channelDoctorCmd, channelStartCmd, channelAddCmd, channelRemoveCmd)
	rootCmd.AddCommand(channelCmd)
}

// implementedChannels are the platforms with a concrete channelbus.
// Channel implementation in this repository. The rest are configuration
// surface only (spec.md §6.4 names eight platforms; wiring a real
// transport for Telegram/Discord/Slack/etc. is out of this repo's
// scope — see DESIGN.md).
var implementedChannels = map[string]bool{"cli": true}

func runChannelList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Channels)+1)
	if _, ok := cfg.Channels["cli"]; !ok {
		fmt.Println("cli\tenabled=true\timplemented=true")
	}
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch := cfg.Channels[name]
		fmt.Printf("%s\tenabled=%t\timplemented=%t\n", name, ch.Enabled, implementedChannels[name])
	}
	return nil
}

func runChannelDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	check := func(name string, ch config.ChannelConfig) {
		switch {
		case !ch.Enabled:
			fmt.Printf("%s: disabled\n", name)
		case !implementedChannels[name]:
			fmt.Printf("%s: configured, no transport implemented in this build\n", name)
		case ch.Token == "":
			fmt.Printf("%s: enabled but missing a credential/token\n", name)
		default:
			fmt.Printf("%s: enabled, credential present\n", name)
		}
	}

	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check(name, cfg.Channels[name])
	}

	fmt.Println("cli: always reachable (local stdio)")
	return nil
}

func runChannelStart(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !implementedChannels[name] {
		return fmt.Errorf("channel %q has no transport implemented in this build (configuration-only platform)", name)
	}

	logger := newLogger("channel." + name)
	bus := channelbus.NewBus(channelbus.WithBusLogger(logger))

	var ch channelbus.Channel
	switch name {
	case "cli":
		ch = channels.NewCLI(os.Stdin, os.Stdout, "local")
	}
	bus.Register(ch)

	listener := channelbus.NewSupervisedListener(ch, channelbus.WithSupervisorLogger(logger))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go bus.Run(ctx, echoDispatcher)

	fmt.Printf("channel %q running; type a message and press enter (Ctrl-D to stop)\n", name)
	listener.Run(ctx, bus.Sender())
	return nil
}

// echoDispatcher is the placeholder agent pipeline for `channel start`:
// it scrubs secrets, applies the request filter, and echoes the result
// back on the originating channel. A full agent loop is out of this
// repo's scope (spec.md Non-goals).
func echoDispatcher(ctx context.Context, msg channelbus.ChannelMessage, reply func(string) error) {
	verdict := defaultSandboxFilter.Check("/channel/"+msg.Channel, []byte(msg.Content))
	if verdict.Blocked {
		_ = reply(fmt.Sprintf("blocked: %s", verdict.Reason))
		return
	}
	result := defaultScrubber.Scrub(msg.Content)
	_ = reply(fmt.Sprintf("received: %s", result.Text))
}

func runChannelAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Channels == nil {
		cfg.Channels = map[string]config.ChannelConfig{}
	}
	ch := cfg.Channels[name]
	ch.Enabled = true
	if channelAddToken != "" {
		ch.Token = channelAddToken
	}
	cfg.Channels[name] = ch

	dir, err := configDataDir()
	if err != nil {
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	fmt.Printf("channel %q added and enabled\n", name)
	return nil
}

func runChannelRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	delete(cfg.Channels, name)

	dir, err := configDataDir()
	if err != nil {
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	fmt.Printf("channel %q removed\n", name)
	return nil
}
