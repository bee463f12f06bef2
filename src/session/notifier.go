package session

// Notifier receives the user-facing connection and delivery notifications
// the presentation layer turns into toasts. Implementations must not block;
// they are called from session goroutines.
type Notifier interface {
	ConnectionUp()
	ConnectionDown(reason string)
	ConnectError(err error)
	MessageFailed(messageID, reason string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ConnectionUp()                {}
func (NopNotifier) ConnectionDown(string)        {}
func (NopNotifier) ConnectError(error)           {}
func (NopNotifier) MessageFailed(string, string) {}
