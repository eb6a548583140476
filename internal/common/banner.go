package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(72)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("LOOM")
	b.PrintCenteredText("Distributed Micro-Instruction Execution Engine")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", GetVersion(), 15)
	b.PrintKeyValue("Build", GetBuild(), 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Worker Port", config.Server.ListenAddr, 15)
	if config.Server.AdminAddr != "" {
		b.PrintKeyValue("Admin", config.Server.AdminAddr, 15)
	}
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", GetVersion()).
		Str("build", GetBuild()).
		Str("environment", config.Environment).
		Str("listen_addr", config.Server.ListenAddr).
		Str("admin_addr", config.Server.AdminAddr).
		Msg("Application started")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("LOOM")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}
