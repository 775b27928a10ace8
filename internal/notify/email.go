package notify

import (
	"context"
	"strings"

	"carmarket/api/internal/email"
)

type listingMailer interface {
	IsConfigured() bool
	SendListingNotice(to string, data email.ListingNoticeData) error
}

// EmailNotifier mails the seller. It does nothing when SMTP is not set up or
// the event carries no seller address.
type EmailNotifier struct {
	mailer  listingMailer
	baseURL string
}

func NewEmailNotifier(mailer listingMailer, appBaseURL string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, baseURL: strings.TrimRight(appBaseURL, "/")}
}

func (n *EmailNotifier) Notify(_ context.Context, event Event) error {
	if n.mailer == nil || !n.mailer.IsConfigured() || strings.TrimSpace(event.SellerEmail) == "" {
		return nil
	}
	data := email.ListingNoticeData{
		UserName:     event.SellerName,
		ListingTitle: event.ListingTitle,
		Status:       event.Status,
		Reason:       event.Reason,
	}
	if n.baseURL != "" {
		data.ListingURL = n.baseURL + "/listings/" + event.ListingID
	}
	return n.mailer.SendListingNotice(event.SellerEmail, data)
}
