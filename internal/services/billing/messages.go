package billing

import (
	"fmt"

	"github.com/drople/metering/internal/models"
)

// Notification copy for billing side effects. Handlers translate outcomes
// into customer-facing refusals separately; these texts go to the persisted
// notification feed of the involved accounts.

func insufficientTitle(category models.UsageCategory) string {
	switch category {
	case models.CategoryImageRecognize:
		return "Image recognition credits exhausted"
	default:
		return "AI reply credits exhausted"
	}
}

func insufficientBody() string {
	return "Your account balance is exhausted. Please top up or renew your " +
		"package to keep using AI features."
}

func sponsorShortfallHolderBody() string {
	return "Your sponsoring partner's balance is insufficient. Please " +
		"contact your partner to top up or purchase a package."
}

func sponsorShortfallSponsorTitle() string {
	return "Subordinate account blocked by low balance"
}

func sponsorShortfallSponsorBody(username string) string {
	return fmt.Sprintf("Your subordinate account %s cannot use AI services "+
		"because of insufficient balance. Please top up soon.", username)
}

// CustomerMessage is the friendly refusal shown to the end customer when a
// charge is rejected for the given category.
func CustomerMessage(category models.UsageCategory) string {
	if category == models.CategoryChatReply {
		return "Sorry, our support staff is currently busy."
	}
	return "Not enough AI reply credits left, please check your balance."
}
