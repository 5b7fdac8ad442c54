package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/service"
)

const (
	textBanned        = "🚫 You are banned from using this bot."
	textInvalidLink   = "⚠️ Invalid or expired link."
	textThrottled     = "⏳ Too many requests. Please wait a minute and try again."
	textFileNotFound  = "❌ <b>File Not Found</b>\n\nThe requested file could not be found. It may have been deleted or the link is invalid."
	textBatchNotFound = "❌ <b>Not Found</b>\n\nThe requested batch could not be found. It may have been deleted or the link is invalid."
	textExpired       = "⌛ <b>Link Expired</b>\n\nThis content has reached its delete time and is no longer available."
	textAccessDenied  = "❌ <b>Access Denied</b>\n\nOnly administrators can upload files to this bot.\nIf you need to upload files, please contact an admin."
	textUnsupported   = "❌ Unsupported file type."
	textAdminOnly     = "❌ Only admins can use this command."
	textInternalError = "⚠️ Something went wrong. Please try again later."
	textNoResults     = "🔍 No results found. Try different keywords."
	textSearchPrompt  = "🔍 Send me what you are looking for."
	textBroadcastAsk  = "📢 Send the message you want to broadcast. Text and media are both fine.\n\nUse /cancel to abort."
	textNoRecipients  = "❌ No users found to broadcast to."
	textBroadcastOff  = "❌ Broadcast cancelled."
	textNothingToStop = "Nothing to cancel."
	textCancelled     = "✅ Cancelled."
	textUnknown       = "🤖 I did not understand that. Send /help to see what I can do."
	textPickTTL       = "⏳ <b>When should this file be deleted?</b>\n\n📝 %s · %s · %s"
	textUploadGone    = "⌛ This upload prompt has expired. Send the file again."
	textStorageBusy   = "⏳ A batch upload is in progress. Try again after it ends with /endbatch or /cancel."
)

const (
	usageStartBatch = "Usage: <code>/startbatch &lt;ttl_minutes&gt; &lt;batch_name&gt;</code>\n\nUse 0 minutes for a batch that never expires."
	usageNewBatch   = "📦 <b>Create Batch</b>\n\n<b>Usage:</b> <code>/newbatch &lt;start_msg_id&gt; &lt;end_msg_id&gt; &lt;ttl_minutes&gt; [batch_name]</code>\n\n<b>Example:</b> <code>/newbatch 100 150 0 My Movie Collection</code>"
	usageUserID     = "Usage: <code>/%s &lt;user_id&gt;</code>"
	usageAddPost    = "Reply to a forwarded message with <code>/addpost &lt;title&gt; | &lt;keywords&gt;</code>"
	usageDelPost    = "Usage: <code>/delpost &lt;post_id&gt;</code>"
)

const textHelp = `📖 <b>How to Use This Bot</b>

🔸 <b>For Users:</b>
• Click on file links to download
• All file types are supported
• Some links expire after a set time
• /search &lt;keywords&gt; finds curated posts

🔸 <b>File Types Supported:</b>
• Documents (PDF, DOC, etc.)
• Videos (MP4, MKV, etc.)
• Photos (JPG, PNG, etc.)
• Audio files (MP3, etc.)
• Voice messages
• Stickers &amp; Animations`

const textAbout = `🔹 <b>Features:</b>
• All media types support
• Batch download
• Keyword search
• Timed deletion
🔹 <b>Status:</b> Active ✅`

const textBatchHelp = `📦 <b>Batch Mode Guide</b>

🔸 <b>How to create batches:</b>
1. Use <code>/startbatch &lt;ttl_minutes&gt; &lt;batch_name&gt;</code>
2. Upload your files one by one
3. Use <code>/endbatch</code> when done

🔸 <b>Alternative method:</b>
Use <code>/newbatch &lt;start_id&gt; &lt;end_id&gt; &lt;ttl_minutes&gt; [name]</code> with message IDs from the storage channel

🔸 <b>Delete time:</b>
0 minutes keeps the batch forever.`

const textUserMgmt = `👥 <b>User Management</b>

• <code>/user &lt;id&gt;</code> shows a user
• <code>/ban &lt;id&gt;</code> blocks a user
• <code>/unban &lt;id&gt;</code> lifts a ban
• <code>/broadcast [text]</code> messages everyone`

const textSettings = `🔧 <b>Settings</b>

• <code>/addpost &lt;title&gt; | &lt;keywords&gt;</code> as a reply adds a search post
• <code>/delpost &lt;id&gt;</code> removes one
• <code>/posts</code> lists recent posts
• <code>/cancel</code> drops a pending action or batch session`

func userMenuText(firstName string) string {
	return fmt.Sprintf("👋 <b>Welcome %s!</b>\n\nThis bot helps you access and download files.", html.EscapeString(firstName))
}

func adminMenuText(firstName string, stats *service.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛡️ <b>Admin Panel - Welcome %s!</b>\n\n", html.EscapeString(firstName))
	if stats != nil {
		fmt.Fprintf(&b, "📊 <b>Quick Stats:</b>\n• Files: <code>%d</code>\n• Batches: <code>%d</code>\n• Users: <code>%d</code>\n\n",
			stats.Files, stats.Batches, stats.Users)
	}
	b.WriteString("📤 <b>Upload Files:</b> Just send any media file\n")
	b.WriteString("📦 <b>Create Batch:</b> Use batch mode for multiple files\n\n")
	b.WriteString("Choose an option below:")
	return b.String()
}

func contactText(admins []int64) string {
	mentions := make([]string, 0, len(admins))
	for _, id := range admins {
		mentions = append(mentions, fmt.Sprintf(`<a href="tg://user?id=%d">admin</a>`, id))
	}
	list := strings.Join(mentions, ", ")
	if list == "" {
		list = "none configured"
	}
	return "📞 <b>Contact Information</b>\n\nNeed help? Contact our admins:\n\n👨‍💼 <b>Admins:</b> " + list
}

func statsText(stats *service.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Detailed Statistics</b>\n\n")
	fmt.Fprintf(&b, "📁 <b>Files:</b> %d\n", stats.Files)
	fmt.Fprintf(&b, "📦 <b>Batches:</b> %d\n", stats.Batches)
	fmt.Fprintf(&b, "👥 <b>Total Users:</b> %d\n", stats.Users)
	fmt.Fprintf(&b, "🚫 <b>Banned Users:</b> %d\n", stats.BannedUsers)
	fmt.Fprintf(&b, "💾 <b>Storage Used:</b> %s\n", humanize.IBytes(uint64(max(stats.TotalBytes, 0))))
	if len(stats.Deliveries) > 0 {
		b.WriteString("\n📈 <b>Deliveries:</b>\n")
		for _, kind := range []string{model.DeliveryKindFile, model.DeliveryKindBatch, model.DeliveryKindPost, model.DeliveryKindBroadcast, model.DeliveryKindExpired} {
			if n, ok := stats.Deliveries[kind]; ok {
				fmt.Fprintf(&b, "• %s: %d\n", kind, n)
			}
		}
	}
	return b.String()
}

func expiryLabel(expiry *time.Time, now time.Time) string {
	if expiry == nil {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", expiry.UTC().Format("2006-01-02 15:04 UTC"), humanize.RelTime(*expiry, now, "ago", "from now"))
}

func ttlPromptText(media model.MediaDescriptor) string {
	return fmt.Sprintf(textPickTTL, html.EscapeString(media.Name), media.Kind, humanize.IBytes(uint64(max(media.Size, 0))))
}

func uploadDoneText(res *service.UploadResult, now time.Time) string {
	f := res.File
	return fmt.Sprintf("✅ <b>File Uploaded Successfully!</b>\n\n"+
		"📝 <b>File Details:</b>\n"+
		"• Name: <code>%s</code>\n"+
		"• Type: <code>%s</code>\n"+
		"• Size: <code>%s</code>\n"+
		"• Deletes: <code>%s</code>\n\n"+
		"🔗 <b>Share Link:</b>\n<code>%s</code>\n\n"+
		"💡 Anyone with this link can download the file.",
		html.EscapeString(f.Name), f.Type, humanize.IBytes(uint64(max(f.Size, 0))),
		expiryLabel(f.ExpiryAt, now), html.EscapeString(res.Link))
}

func batchDoneText(res *service.BatchResult, now time.Time) string {
	b := res.Batch
	return fmt.Sprintf("✅ <b>Batch Created Successfully!</b>\n\n"+
		"📦 <b>Batch Name:</b> %s\n"+
		"📁 <b>Files:</b> %d files\n"+
		"🆔 <b>Batch ID:</b> #%d\n"+
		"⏳ <b>Deletes:</b> %s\n\n"+
		"🔗 <b>Share Link:</b>\n<code>%s</code>\n\n"+
		"💡 Anyone with this link can download all files in the batch.",
		html.EscapeString(b.Name), b.FileCount(), b.ID, expiryLabel(b.ExpiryAt, now), html.EscapeString(res.Link))
}

func batchStartedText(session *model.BatchUploadSession) string {
	ttl := "never"
	if session.TTLMinutes > 0 {
		ttl = fmt.Sprintf("%d minutes", session.TTLMinutes)
	}
	return fmt.Sprintf("📦 <b>Batch Upload Started</b>\n\n"+
		"📝 <b>Batch Name:</b> %s\n"+
		"⏳ <b>Deletes after:</b> %s\n\n"+
		"📤 Now send me the files you want to include in this batch.\n"+
		"When you're done, use /endbatch. /cancel drops the session.\n\n"+
		"🔄 <b>Session ID:</b> <code>%s</code>",
		html.EscapeString(session.BatchName), ttl, session.SessionID)
}

func batchAppendedText(session *model.BatchUploadSession) string {
	return fmt.Sprintf("➕ Added to <b>%s</b> (%d files so far).", html.EscapeString(session.BatchName), session.FileCount)
}

func downloadStartText(batch *model.BatchRecord) string {
	return fmt.Sprintf("📦 <b>Download Started</b>\n\n📝 <b>Name:</b> %s\n📁 <b>Files:</b> %d files",
		html.EscapeString(batch.Name), batch.FileCount())
}

func fileDownloadingText(file *model.FileRecord) string {
	return fmt.Sprintf("📁 <b>Downloading File...</b>\n\n"+
		"📝 <b>Name:</b> %s\n"+
		"📂 <b>Type:</b> %s\n\n"+
		"⏳ Please wait while we fetch your file...",
		html.EscapeString(file.Name), html.EscapeString(file.Type))
}

func fileCompleteText(name string) string {
	return fmt.Sprintf("✅ <b>Download Complete!</b>\n\n📄 <b>File:</b> %s\n\n"+
		"⚠️ Forward it to Saved Messages if you want to keep it.",
		html.EscapeString(name))
}

func batchSummaryText(res *service.DeliveryResult) string {
	return fmt.Sprintf("✅ <b>Download Complete!</b>\n\n"+
		"📦 <b>%s</b>\n"+
		"✅ <b>Downloaded:</b> %d files\n"+
		"❌ <b>Failed:</b> %d files",
		html.EscapeString(res.Name), res.Delivered, res.Failed)
}

func deliveryFailedText(name string) string {
	return fmt.Sprintf("❌ <b>Download Failed</b>\n\n%s could not be sent right now.\nPlease try again later or contact admin.",
		html.EscapeString(name))
}

func searchChoicesText(query string, matches []model.SearchPost) string {
	return fmt.Sprintf("🔍 <b>%d results for</b> <i>%s</i>\n\nPick one:", len(matches), html.EscapeString(query))
}

func postAddedText(post *model.SearchPost) string {
	return fmt.Sprintf("✅ Post #%d <b>%s</b> added.\n🏷 Keywords: %s",
		post.ID, html.EscapeString(post.Title), html.EscapeString(orDefault(post.KeywordText, "none")))
}

func postListText(posts []model.SearchPost, now time.Time) string {
	if len(posts) == 0 {
		return "📭 No search posts yet."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Recent search posts</b>\n\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "#%d <b>%s</b> · %s\n", p.ID, html.EscapeString(p.Title), humanize.RelTime(p.AddedAt, now, "ago", "from now"))
		if p.KeywordText != "" {
			fmt.Fprintf(&b, "   🏷 %s\n", html.EscapeString(p.KeywordText))
		}
	}
	return b.String()
}

func userInfoText(u *model.User, now time.Time) string {
	username := "none"
	if u.Username != nil && *u.Username != "" {
		username = "@" + *u.Username
	}
	status := "active ✅"
	if u.Banned {
		status = "banned 🚫"
	}
	return fmt.Sprintf("👤 <b>User</b> <code>%d</code>\n\n• Name: %s\n• Username: %s\n• Joined: %s\n• Status: %s",
		u.ID, html.EscapeString(orDefault(u.DisplayName, "unknown")), html.EscapeString(username),
		humanize.RelTime(u.JoinedAt, now, "ago", "from now"), status)
}

func broadcastConfirmText(draft service.BroadcastDraft) string {
	// Text drafts are already HTML.
	payload := "the message above"
	if draft.MessageID == 0 {
		payload = draft.Text
	}
	return fmt.Sprintf("📢 <b>Confirm Broadcast</b>\n\n<b>Message:</b> %s\n<b>Recipients:</b> %d users\n\nAre you sure you want to send this message to all users?",
		payload, len(draft.Recipients))
}

func broadcastDoneText(res *service.BroadcastResult) string {
	return fmt.Sprintf("📢 <b>Broadcast Finished</b>\n\n👥 Recipients: %d\n✅ Sent: %d\n❌ Failed: %d",
		res.Recipients, res.Success, res.Failed)
}
