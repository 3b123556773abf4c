package gateway

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/roelfdiedericks/instasave/internal/user"
)

// Chat replies.
const (
	AdminSetText     = "👑 You have been set as the admin!"
	DeniedText       = "❌ You don't have permission to use this command."
	InvalidURLText   = "❌ Invalid Instagram URL. Check the url."
	FetchFailureText = "❌ Failure fetching media. Check if the post is public or try again later."
	AuthFailureText  = "⚠️ Instagram login failed, try again later."
	NoLedgerText     = "No user log file found. No users have used the bot yet."
	NoUsersText      = "No users have used the bot yet."
	ReportErrorText  = "⚠️ An error occurred while retrieving user data."

	WelcomeText = "👋 Welcome to the Instagram Saver Bot Fork!\n\n" +
		"📩 Send me any **public** Instagram link (post, reel, or IGTV), and I'll fetch the media for you.\n" +
		"⚠️ Make sure the post is **public** and not private.\n\n" +
		"Happy downloading! 🎉"
)

// MaxMessageLen keeps report chunks under Telegram's 4096 character limit.
// Telegram counts UTF-16 code units, so emoji in names count double.
const MaxMessageLen = 4000

// textLen measures s the way Telegram does.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// cutText shortens s to at most limit UTF-16 code units without splitting a rune.
func cutText(s string, limit int) string {
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if n+w > limit {
			return s[:i]
		}
		n += w
	}
	return s
}

func reportHeader(rep *user.Report) string {
	return fmt.Sprintf("📊 Total users: %d\n🌍 Users who used today: %d\n\n📋 List of users who used the bot:\n\n",
		rep.Total, rep.ActiveToday)
}

func reportEntry(r user.Record) string {
	return fmt.Sprintf("👤 User ID: %d\n   Username: @%s\n   First Name: %s\n   Last Active: %s\n\n",
		r.UserID, r.DisplayUsername(), r.FirstName, r.Timestamp)
}

// chunkReport renders rep and splits it on entry boundaries so no chunk
// exceeds limit UTF-16 code units. A single oversized entry is cut.
func chunkReport(rep *user.Report, limit int) []string {
	var chunks []string
	var b strings.Builder
	size := 0

	add := func(s string) {
		n := textLen(s)
		if size > 0 && size+n > limit {
			chunks = append(chunks, strings.TrimRight(b.String(), "\n"))
			b.Reset()
			size = 0
		}
		if n > limit {
			s = cutText(s, limit)
			n = textLen(s)
		}
		b.WriteString(s)
		size += n
	}

	add(reportHeader(rep))
	for _, r := range rep.Records {
		add(reportEntry(r))
	}
	if size > 0 {
		chunks = append(chunks, strings.TrimRight(b.String(), "\n"))
	}
	return chunks
}
