package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-streamrip-bot/config"
	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

// JobPool is the part of queue.Pool the handlers use.
type JobPool interface {
	Submit(req queue.Request) (queue.Snapshot, error)
	Tracker() *queue.Tracker
}

// jobSubmitter turns parsed arguments into admitted jobs.
type jobSubmitter struct {
	pool     JobPool
	resolver queue.Resolver
	defaults config.StreamripConfig
	logger   *zap.SugaredLogger
}

type submission struct {
	ownerID    int64
	chatID     int64
	messageID  int
	source     string
	descriptor downloader.MediaDescriptor
	args       ParsedArgs
	mode       queue.Mode
}

// request applies flags over the user's saved settings over the configured defaults.
func (s *jobSubmitter) request(ctx context.Context, sub submission) queue.Request {
	settings := s.pool.Tracker().Settings(ctx, sub.ownerID)

	quality := downloader.Quality(s.defaults.DefaultQuality)
	if settings.Quality != nil {
		quality = *settings.Quality
	}
	if sub.args.Quality != nil {
		quality = *sub.args.Quality
	}

	codec := downloader.Codec(s.defaults.DefaultCodec)
	if settings.Codec != "" {
		codec = settings.Codec
	}
	if sub.args.Codec != "" {
		codec = sub.args.Codec
	}

	mode := sub.mode
	if mode == "" {
		mode = settings.Mode
	}
	if mode == "" {
		mode = queue.ModeLeech
	}

	return queue.Request{
		OwnerID:    sub.ownerID,
		ChatID:     sub.chatID,
		MessageID:  sub.messageID,
		Source:     sub.source,
		Descriptor: sub.descriptor,
		Name:       sub.args.Name,
		Quality:    quality,
		Codec:      codec,
		Mode:       mode,
	}
}

// submit resolves the source when needed and hands the job to the pool.
func (s *jobSubmitter) submit(ctx context.Context, sub submission) (queue.Snapshot, error) {
	if sub.descriptor.ID == "" {
		desc, err := s.resolver.Resolve(sub.source)
		if err != nil {
			return queue.Snapshot{}, err
		}
		sub.descriptor = desc
	}
	return s.pool.Submit(s.request(ctx, sub))
}

// DownloadHandler implements /sr (mirror) and /srleech (leech). Text that is
// not a link opens a search menu instead.
type DownloadHandler struct {
	command   string
	aliases   []string
	mode      queue.Mode
	submitter *jobSubmitter
	search    *SearchHandler
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewMirrorHandler creates the /sr handler.
func NewMirrorHandler(submitter *jobSubmitter, search *SearchHandler, messenger *Messenger, logger *zap.SugaredLogger) *DownloadHandler {
	return &DownloadHandler{
		command:   "sr",
		aliases:   []string{"streamrip", "srip"},
		mode:      queue.ModeMirror,
		submitter: submitter,
		search:    search,
		messenger: messenger,
		logger:    logger,
	}
}

// NewLeechHandler creates the /srleech handler.
func NewLeechHandler(submitter *jobSubmitter, search *SearchHandler, messenger *Messenger, logger *zap.SugaredLogger) *DownloadHandler {
	return &DownloadHandler{
		command:   "srleech",
		aliases:   []string{"streamripleech", "sripleech"},
		mode:      queue.ModeLeech,
		submitter: submitter,
		search:    search,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *DownloadHandler) Command() string {
	return h.command
}

// Aliases returns the alternative command names.
func (h *DownloadHandler) Aliases() []string {
	return h.aliases
}

// Handle queues every link in the arguments, or starts a search.
func (h *DownloadHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /%s command for user %d in chat %d", h.command, cmdCtx.UserID, cmdCtx.ChatID)

	if err := requireUser(cmdCtx); err != nil {
		return err
	}

	args := cmdCtx.Args
	if strings.TrimSpace(args) == "" && cmdCtx.ReplyToMessageID != 0 {
		replyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		replied, err := h.messenger.RepliedMessage(replyCtx, cmdCtx.ReplyToMessageID)
		cancel()
		if err != nil {
			h.logger.Warnf("Failed to read replied message %d: %v", cmdCtx.ReplyToMessageID, err)
		} else {
			args = replied.Message
		}
	}
	if strings.TrimSpace(args) == "" {
		return h.sendUsage(ctx, cmdCtx)
	}

	parsed, err := ParseArgs(args)
	if err != nil {
		return err
	}

	if parsed.IsSearch() {
		return h.search.open(ctx, cmdCtx, parsed, h.mode)
	}
	if len(parsed.Links) == 0 {
		return h.sendUsage(ctx, cmdCtx)
	}

	if len(parsed.Links) == 1 {
		snap, err := h.submitter.submit(ctx, h.submission(cmdCtx, parsed, parsed.Links[0]))
		if err != nil {
			return err
		}
		h.logger.Infof("Successfully processed /%s command for user %d: job %s (took %v)",
			h.command, cmdCtx.UserID, snap.ID, time.Since(startTime))
		return nil
	}

	return h.submitBatch(ctx, cmdCtx, parsed, startTime)
}

func (h *DownloadHandler) submission(cmdCtx *CommandContext, parsed ParsedArgs, link string) submission {
	return submission{
		ownerID:   cmdCtx.UserID,
		chatID:    cmdCtx.ChatID,
		messageID: cmdCtx.MessageID,
		source:    link,
		args:      parsed,
		mode:      h.mode,
	}
}

// submitBatch queues each link independently and replies with a summary.
func (h *DownloadHandler) submitBatch(ctx context.Context, cmdCtx *CommandContext, parsed ParsedArgs, startTime time.Time) error {
	var (
		queued   []string
		failures []string
	)
	for _, link := range parsed.Links {
		snap, err := h.submitter.submit(ctx, h.submission(cmdCtx, parsed, link))
		if err != nil {
			msg, ok := knownErrorMessage(err)
			if !ok {
				msg = err.Error()
			}
			failures = append(failures, fmt.Sprintf("• `%s`: %s", escapeMarkdown(link), msg))
			h.logger.Warnf("Batch link %s rejected for user %d: %v", link, cmdCtx.UserID, err)
			continue
		}
		queued = append(queued, snap.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📥 **Queued %d of %d links**", len(queued), len(parsed.Links))
	if len(queued) > 0 {
		fmt.Fprintf(&b, "\nTasks: `%s`", strings.Join(queued, "`, `"))
	}
	if len(failures) > 0 {
		b.WriteString("\n\n**Rejected:**\n")
		b.WriteString(strings.Join(failures, "\n"))
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.messenger.Send(sendCtx, cmdCtx.ChatID, cmdCtx.MessageID, b.String(), nil); err != nil {
		return fmt.Errorf("failed to send batch summary: %w", err)
	}

	h.logger.Infof("Successfully processed /%s batch for user %d: %d queued, %d rejected (took %v)",
		h.command, cmdCtx.UserID, len(queued), len(failures), time.Since(startTime))
	return nil
}

func (h *DownloadHandler) sendUsage(ctx context.Context, cmdCtx *CommandContext) error {
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := h.messenger.Send(sendCtx, cmdCtx.ChatID, cmdCtx.MessageID, h.usage(), nil)
	return err
}

func (h *DownloadHandler) usage() string {
	return fmt.Sprintf("❌ Please provide a streamrip URL or search query!\n\n"+
		"**Usage:**\n"+
		"• `/%[1]s https://www.qobuz.com/album/...`\n"+
		"• `/%[1]s search query`\n"+
		"• `/%[1]s -q 3 -c flac https://...`\n"+
		"• several links, one per line, queue a batch\n\n"+
		"**Supported platforms:**\n"+
		"🟦 Qobuz • ⚫ Tidal • 🟣 Deezer • 🟠 SoundCloud\n"+
		"🔴 Last.fm playlists are matched on the configured source", h.command)
}
