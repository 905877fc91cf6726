package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HelpHandler implements CommandHandler for the /help command
type HelpHandler struct {
	router    *CommandRouter
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewHelpHandler creates a new HelpHandler instance
func NewHelpHandler(router *CommandRouter, messenger *Messenger, logger *zap.SugaredLogger) *HelpHandler {
	return &HelpHandler{
		router:    router,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *HelpHandler) Command() string {
	return "help"
}

// Handle processes the /help command and sends a help message with markdown formatting
func (h *HelpHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /help command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, h.createHelpMessage(), nil); err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.Infof("Successfully processed /help command for user %d (took %v)",
		cmdCtx.UserID, time.Since(startTime))
	return nil
}

// createHelpMessage creates the help message with markdown formatting
func (h *HelpHandler) createHelpMessage() string {
	commands := []struct{ name, args, text string }{
		{"sr", "<link|query>", "Download and copy to the mirror"},
		{"srleech", "<link|query>", "Download and upload to this chat"},
		{"srsearch", "<query>", "Search and pick a result"},
		{"status", "", "Show your tasks"},
		{"cancel", "[id]", "Cancel a task"},
		{"cancelall", "", "Cancel all your tasks"},
		{"settings", "", "Show or change your defaults"},
		{"id", "", "Get chat or user ID (reply to message for user ID)"},
		{"ping", "", "Check if the bot is responsive"},
		{"help", "", "Show this help message"},
	}

	var b strings.Builder
	b.WriteString("**Available Commands**\n")
	for _, c := range commands {
		if !h.router.HasHandler(h.router.Name(c.name)) {
			continue
		}
		line := "/" + h.router.Name(c.name)
		if c.args != "" {
			line += " " + c.args
		}
		fmt.Fprintf(&b, "%s - %s\n", line, c.text)
	}

	sr := h.router.Name("sr")
	b.WriteString("\n**Flags**\n")
	b.WriteString("`-q 0-4` quality • `-c flac|mp3|m4a|ogg|opus` codec • `-n name` custom name\n")
	b.WriteString("Search only: `-p qobuz|tidal|deezer|soundcloud` • `-t track|album|playlist|artist`\n")

	b.WriteString("\n**Examples**\n")
	fmt.Fprintf(&b, "`/%s https://www.qobuz.com/us-en/album/example/0060254780178`\n", sr)
	fmt.Fprintf(&b, "`/%s -q 2 -c mp3 https://tidal.com/browse/track/12345`\n", h.router.Name("srleech"))
	fmt.Fprintf(&b, "`/%s -p deezer -t album daft punk`\n", h.router.Name("srsearch"))
	b.WriteString("Several links, one per line, queue a batch.\n")

	b.WriteString("\n**Quality levels**\n")
	b.WriteString("0: 128 kbps • 1: 320 kbps • 2: CD • 3: Hi-Res 96kHz • 4: Hi-Res+ 192kHz\n")

	b.WriteString("\n**Tip:** Tap on any example above to copy it!")
	return b.String()
}
