// Package downloader adapts the streamrip CLI and the streaming services'
// public catalogues for the Telegram bot.
//
// The package defines:
//   - Platform: one variant per supported service, selected by URL pattern in a Registry
//   - Client: runs `rip` for a resolved MediaDescriptor and reports Progress
//   - FallbackPolicy: the ordered quality steps tried when a quality is unavailable
//   - Structured DownloadError types used by the job runner to pick user-facing reasons
//   - Media helpers that list and probe the audio files streamrip produced
package downloader
