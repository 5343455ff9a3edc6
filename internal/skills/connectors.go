package skills

import "context"

// Connectors are the external-API collaborators behind the send and
// read skills. Each call returns a human-readable result string or an
// error; the dispatcher folds either into the uniform Result shape.

// Mailer sends, replies to and labels email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
	Reply(ctx context.Context, messageID, body string) (string, error)
	Label(ctx context.Context, messageID, label string) (string, error)
}

// SocialPoster publishes to a social network.
type SocialPoster interface {
	Post(ctx context.Context, network, text, imageURL string) (string, error)
}

// Ledger talks to the accounting system.
type Ledger interface {
	CreateInvoice(ctx context.Context, partner string, amount float64, description string) (string, error)
	ListContacts(ctx context.Context, query string) (string, error)
	Report(ctx context.Context, period string) (string, error)
	PostPayment(ctx context.Context, invoiceID int, amount float64) (string, error)
}
