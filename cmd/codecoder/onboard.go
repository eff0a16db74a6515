package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Guided first-run configuration",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	ask := func(prompt, def string) string {
		fmt.Printf("%s [%s]: ", prompt, def)
		if !scanner.Scan() {
			return def
		}
		v := strings.TrimSpace(scanner.Text())
		if v == "" {
			return def
		}
		return v
	}

	cfg.Gateway.Host = ask("Gateway bind host", cfg.Gateway.Host)
	if port, err := strconv.Atoi(ask("Gateway port", strconv.Itoa(cfg.Gateway.Port))); err == nil {
		cfg.Gateway.Port = port
	}
	cfg.Providers.Default = ask("Default AI provider", cfg.Providers.Default)
	cfg.Codecoder.APIKey = ask("codecoder API key (blank to skip)", cfg.Codecoder.APIKey)

	if ask("Enable the local CLI channel? (y/n)", "y") != "n" {
		cfg.Channels = map[string]config.ChannelConfig{"cli": {Enabled: true}}
	}

	dir, err := configDataDir()
	if err != nil {
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		return err
	}

	fmt.Printf("wrote configuration to %s/config.json\n", dir)
	return nil
}
