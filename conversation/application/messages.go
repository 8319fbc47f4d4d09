package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-post/captions"
	"github.com/dustin/go-humanize"
)

const (
	msgNotRegistered    = "🚫 You're not registered with any salon. Please contact your salon manager to be added before posting."
	msgConsentPrompt    = "Please review our SMS Consent, Privacy, and Terms before posting.\n\nReply *AGREE* to opt in. Reply STOP to opt out. HELP for help. Msg&data rates may apply."
	msgConsentThanks    = "✅ Thanks! Consent received. Continuing…"
	msgSendPhoto        = "📸 Please send a photo with a short note to generate your caption."
	msgNoMedia          = "📸 Please send a *photo* with a short note about the service and I'll draft a caption."
	msgFlagged          = "⚠️ This caption or note was flagged. Please resend a different photo."
	msgCaptionFailed    = "⚠️ I couldn't generate a caption right now. Please try again in a moment."
	msgNoDraft          = "⚠️ No draft found. Please send a photo first."
	msgNoImage          = "⚠️ No previous image found. Please send a new photo."
	msgRegenerating     = "🔄 Regenerating a fresh caption..."
	msgCancelled        = "🛑 Cancelled. No action taken."
	msgPendingApproval  = "✅ Your post is pending manager approval before publishing."
	msgNoManager        = "⚠️ Manager approval is required, but no manager is configured for your salon."
	msgManagerNoContact = "⚠️ Manager approval is required, but the manager does not have SMS or chat configured. Please contact support."
	msgSaveFailed       = "⚠️ Could not save your post. Please try again."
	msgOnlyManagersJoin = "🚫 Only managers can use the JOIN command."
	msgOnlyManagersDeny = "🚫 Only managers can deny posts."
	msgJoinUsage        = "⚠️ Usage: JOIN <phone> <name>"
	msgNoPendingPost    = "⚠️ No pending post found to review."
	msgAlreadyHandled   = "ℹ️ That post was already handled."
	msgReasonRecorded   = "✅ Denial reason recorded. Stylist notified."
	msgApproverApproved = "✅ Approved — the post will be scheduled automatically for the next available slot."
	msgGenericFailure   = "⚠️ Something went wrong. Please try again."
)

func previewMessage(primary string) string {
	return fmt.Sprintf("📸 Caption preview:\n\n%s\n\nReply *APPROVE* to continue, *REGENERATE*, or *CANCEL* to stop.", chatText(primary))
}

func approverNotice(contributorName, link, preview string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✂️ New post from %s\n\n", contributorName)
	if preview != "" {
		fmt.Fprintf(&b, "%s\n\n", chatText(preview))
	}
	if link != "" {
		fmt.Fprintf(&b, "Review here: %s\n\n", link)
	}
	b.WriteString(`(Reply APPROVE to auto-schedule this post for your next available slot, or DENY to reject.)`)
	return b.String()
}

func contributorApproved(eta, now time.Time) string {
	return fmt.Sprintf("✅ Manager approved your post! It's queued for publishing soon (about %s).", humanize.RelTime(eta, now, "ago", "from now"))
}

func contributorQueued(eta, now time.Time) string {
	return fmt.Sprintf("✅ Your post is queued for publishing (about %s).", humanize.RelTime(eta, now, "ago", "from now"))
}

func denialReasonPrompt(contributorName string) string {
	return fmt.Sprintf("✏️ Please provide a short reason for denying %s's post.", contributorName)
}

func contributorDenied(reason string) string {
	return fmt.Sprintf("❌ Your post was denied.\n\nReason: %s", reason)
}

func postCancelled(sequence int64) string {
	return fmt.Sprintf("🛑 Post #%d was cancelled and will not be published.", sequence)
}

func joinAdded(name, phone string) string {
	return fmt.Sprintf("✅ Added %s (%s). They can now text photos to this number.", name, phone)
}

func joinExisting(name string) string {
	return fmt.Sprintf("ℹ️ %s is already registered.", name)
}

func joinWelcome(managerName string) string {
	return fmt.Sprintf("👋 Welcome! %s added you as a contributor. Send a photo with a short note and I'll draft a caption for you.", managerName)
}

// chatText drops zero-width spacer lines for chat delivery.
func chatText(caption string) string {
	return strings.ReplaceAll(caption, captions.Spacer, "")
}
