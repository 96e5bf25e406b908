package collector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/history"
	"github.com/snapdoc/snapdoc/pkg/pdf"
	"github.com/snapdoc/snapdoc/pkg/processor"
	"github.com/snapdoc/snapdoc/pkg/session"
	"github.com/snapdoc/snapdoc/pkg/utils"
	"github.com/snapdoc/snapdoc/pkg/worker"
)

// MessageFor turns a taxonomy error into the one user-facing line for it.
// Internal detail never leaks; every branch tells the user what happened
// and what to do next.
func (c *Collector) MessageFor(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return fmt.Sprintf("That's the limit: I can hold %d images per batch. Send /generate to get your document, or /clear to start over.", c.MaxImages())
	case errors.Is(err, ErrEmptyBatch):
		return "I don't have any images from you yet. Send me some photos first, then /generate."
	case errors.Is(err, ErrCooldown):
		return "Hold on, I'm still busy with your previous request. Give it a few seconds and try again."
	case errors.Is(err, handshake.ErrTimeout):
		return "The converter didn't pick up your batch in time. Your images are safe; try /generate again in a moment."
	case errors.Is(err, processor.ErrCorruptedImage):
		return "That file doesn't look like an image I can read. JPEG, PNG, WebP or GIF, please."
	case errors.Is(err, processor.ErrBatchUnrecoverable):
		return "None of the images in this batch could be processed. Send /clear and try uploading them again."
	case errors.Is(err, pdf.ErrSizeExceeded):
		return fmt.Sprintf("The finished document came out over the %dMB delivery limit. Send /clear and try fewer or smaller images.", c.cfg.Output.MaxOutputSizeMB)
	case errors.Is(err, pdf.ErrBuildFailure):
		return "Something broke while building your document. Your images are still here; try /generate again."
	case errors.Is(err, worker.ErrTransportUnavailable):
		return "I can't reach the document service right now. Your images are safe; try again shortly."
	default:
		return "Something unexpected went wrong. Your images are untouched; try again."
	}
}

// AckMessage is the per-image receipt.
func (c *Collector) AckMessage(count int) string {
	return fmt.Sprintf("Got it: %d of %d.", count, c.MaxImages())
}

// WorkingMessage goes out the moment a generate is accepted.
func WorkingMessage() string {
	return "On it. Processing your batch now..."
}

// DeliveryMessage announces the finished document, with any per-image
// skip notes folded in.
func DeliveryMessage(resp worker.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's your document: %d page", resp.PageCount)
	if resp.PageCount != 1 {
		b.WriteString("s")
	}
	if resp.FileSize != "" {
		fmt.Fprintf(&b, ", %s", resp.FileSize)
	}
	b.WriteString(".")
	for _, note := range resp.Notes {
		b.WriteString("\nNote: ")
		b.WriteString(note)
	}
	return b.String()
}

// StatusMessage describes where the user's batch stands. A completed
// session has no images left, so it is answered before the empty check.
func (c *Collector) StatusMessage(sess session.Session, found bool) string {
	if found && sess.Status == session.StatusCompleted && sess.ImageCount() == 0 {
		if last, ok := c.history.LastByUser(sess.UserKey); ok && last.Outcome == history.OutcomeDelivered {
			return fmt.Sprintf("Your last document was delivered (%d pages). Send new photos to start another.", last.Pages)
		}
		return "Your last document was delivered. Send new photos to start another."
	}
	if !found || sess.ImageCount() == 0 {
		return "Nothing collected yet. Send me photos and I'll bank them for your next document."
	}
	if sess.Status == session.StatusProcessing {
		return fmt.Sprintf("Working on your batch of %d images right now.", sess.ImageCount())
	}
	return fmt.Sprintf("You have %d of %d images banked. Send more, or /generate when you're ready.", sess.ImageCount(), c.MaxImages())
}

// StatsMessage summarizes the user's delivery history.
func StatsMessage(agg history.Aggregate) string {
	if agg.Batches == 0 {
		return "No documents yet. Send some photos and /generate to make your first one."
	}
	msg := fmt.Sprintf("Delivered %d of %d batches, %d pages, %s total.",
		agg.Delivered, agg.Batches, agg.Pages, utils.FormatBytes(agg.SizeBytes))
	return msg
}

// HelpText is the command reference, also shown on /start.
func (c *Collector) HelpText() string {
	return fmt.Sprintf(`I collect your photos and turn them into a single PDF document.

Send me images (up to %d per batch), then:
/generate - build and deliver the document
/status - see how many images are banked
/clear - drop the current batch and start over
/stats - your delivery history
/help - this message

Tip: name your files page_1.jpg, page_2.jpg, ... to control page order.`, c.MaxImages())
}

// HintText nudges plain-text chatter toward the workflow.
func HintText() string {
	return "Send me photos to collect, or /help for the commands."
}

// UnknownCommandText answers slash commands outside the table.
func UnknownCommandText() string {
	return "I don't know that command. Try /help."
}

// ClearedText confirms a wipe.
func ClearedText() string {
	return "Cleared. Fresh start, send me photos whenever you're ready."
}
