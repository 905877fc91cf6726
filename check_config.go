package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"go-streamrip-bot/config"
)

func checkConfig(cmd *cobra.Command, envFiles []string) error {
	cfg, err := loadConfig(envFiles)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bot configuration loaded successfully:\n")
	fmt.Fprintf(out, "- API ID: %d\n", cfg.APIID)
	fmt.Fprintf(out, "- API Hash: %s\n", maskString(cfg.APIHash))
	fmt.Fprintf(out, "- Bot Token: %s\n", maskString(cfg.Token))
	fmt.Fprintf(out, "- Log Level: %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "- Owner: %d, sudo users: %s\n", cfg.OwnerID, formatIDs(cfg.SudoUsers))
	fmt.Fprintf(out, "- Authorized chats: %s\n", formatIDs(cfg.AuthorizedChats))
	fmt.Fprintf(out, "- Download dir: %s, mirror dir: %s\n", cfg.DownloadDir, cfg.MirrorDir)
	fmt.Fprintf(out, "- Leech split size: %s\n", humanize.IBytes(uint64(cfg.LeechSplitSize)))
	fmt.Fprintf(out, "- Concurrent downloads: %d, default quality %d, codec %s\n",
		cfg.Streamrip.ConcurrentDownloads, cfg.Streamrip.DefaultQuality, cfg.Streamrip.DefaultCodec)
	fmt.Fprintf(out, "- Task limits: user %d, bot %d, daily %d\n",
		cfg.Limits.UserMaxTasks, cfg.Limits.BotMaxTasks, cfg.Limits.DailyTaskLimit)

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderPlatforms(cfg))
	return nil
}

func renderPlatforms(cfg *config.BotConfig) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Platform", "Enabled", "Configured", "Max quality"})
	for _, name := range config.PlatformNames {
		creds := cfg.Platforms[name]
		tw.AppendRow(table.Row{name, creds.Enabled, creds.Configured(name), creds.MaxQuality})
	}
	lastfm := cfg.Platforms[config.LastFM]
	tw.AppendRow(table.Row{config.LastFM + " (via " + lastfm.Source + ")", lastfm.Enabled, lastfm.Configured(config.LastFM), "source"})
	return tw.Render()
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// maskString masks sensitive information for logging
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
