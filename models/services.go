package models

import "context"

// RelayMessage is one delivery from a relay subscription. Either Event is set,
// or EndOfStored marks the relay's end-of-stored-events signal.
type RelayMessage struct {
	Relay       string
	Event       *Event
	EndOfStored bool
}

type RelaySubscription interface {
	Messages() <-chan RelayMessage
	Close()
}

// RelayPool is the external transport collaborator. Publish is a best-effort
// broadcast with no application-level ack; it fails only if no relay accepted
// the send.
type RelayPool interface {
	Publish(ctx context.Context, relays []string, event *Event) error
	Subscribe(ctx context.Context, relays []string, filter *Filter) (RelaySubscription, error)
}

// Cipher is one end-to-end encryption capability of a signer.
type Cipher interface {
	Encrypt(ctx context.Context, counterparty string, plaintext string) (string, error)
	Decrypt(ctx context.Context, counterparty string, ciphertext string) (string, error)
}

// Signer is the external identity collaborator. Signing may suspend for an
// arbitrarily long time (extension prompt, remote signer pairing).
type Signer interface {
	GetPublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, event *Event) error
	Nip04() (Cipher, bool)
	Nip44() (Cipher, bool)
}

// DedupStore records event ids, reporting whether an id was seen for the first
// time. Shared process-wide by all subscriptions.
type DedupStore interface {
	RecordIfNew(id string) bool
}

type Subscription interface {
	Cancel()
}

type MetricService interface {
	Count(ctx context.Context, name MetricName, val int) error
	Distribution(ctx context.Context, name MetricName, val int) error
	Shutdown(ctx context.Context)
}

type Notifier interface {
	SendAlert(title, desc, content string) error
}

type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Infoln(args ...interface{})
	Warnf(template string, args ...interface{})
	Sync() error
}
