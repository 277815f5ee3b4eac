// Package notifier delivers chat messages and photos to outbound channels.
package notifier

import "context"

// Notifier defines one outbound chat channel. Text is the limited HTML
// subset the chat API accepts (<b>, <i>, <code>, <a>).
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// SendMessage sends one HTML message
	SendMessage(ctx context.Context, text string) error

	// SendPhoto sends an image by URL with an HTML caption
	SendPhoto(ctx context.Context, photoURL, caption string) error
}
