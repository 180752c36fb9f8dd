package dashboard

import (
	"github.com/SamTV12345/stackedit/internal/notify"
)

// NotificationData is the payload of notification messages.
type NotificationData struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notifier forwards notifications to the dashboard and optionally to a
// second notifier, so CLI logging and the UI stream see the same
// messages.
type Notifier struct {
	server *Server
	next   notify.Notifier
}

// NewNotifier creates a notifier broadcasting through server. next may
// be nil.
func NewNotifier(server *Server, next notify.Notifier) *Notifier {
	return &Notifier{server: server, next: next}
}

// Info implements notify.Notifier.
func (n *Notifier) Info(msg string) {
	n.server.Broadcast(MessageTypeNotification, NotificationData{Level: "info", Message: msg})
	if n.next != nil {
		n.next.Info(msg)
	}
}

// Err implements notify.Notifier.
func (n *Notifier) Err(err error) {
	n.server.Broadcast(MessageTypeNotification, NotificationData{Level: "error", Message: err.Error()})
	if n.next != nil {
		n.next.Err(err)
	}
}
