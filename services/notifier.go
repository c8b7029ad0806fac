package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// SoundPlayer plays the alert sound. Prime is called once, from a user
// action, before Play is allowed.
type SoundPlayer interface {
	Prime() error
	Play() error
}

// SystemNotifier shows an OS level notification.
type SystemNotifier interface {
	Permission() bool
	Notify(title, body string) error
}

// Speaker reads a text out loud.
type Speaker interface {
	Cancel()
	Speak(text string) error
}

// Alert is one notification, rendered on every configured sink.
type Alert struct {
	OrderID uint
	Title   string
	Body    string
	Speech  string
}

// NewOrderAlert builds the alert for an order that just arrived on a board.
func NewOrderAlert(o models.Order) Alert {
	body := fmt.Sprintf("Order #%d", o.ID)
	if table := o.TableLabel(); table != "" {
		body += ", table " + table
	}
	if !o.TotalPrice.IsZero() {
		body += ", " + utils.FormatPrice(o.TotalPrice)
	}
	return Alert{
		OrderID: o.ID,
		Title:   "New order",
		Body:    body,
		Speech:  fmt.Sprintf("New order number %d", o.ID),
	}
}

// ReadyToPayAlert is what the cashier hears when the kitchen finishes an order.
func ReadyToPayAlert(o models.Order) Alert {
	table := o.TableLabel()
	if table == "" {
		table = "no table"
	}
	return Alert{
		OrderID: o.ID,
		Title:   "Order ready to pay",
		Body:    fmt.Sprintf("Order #%d, table %s", o.ID, table),
		Speech:  fmt.Sprintf("Order number %d is ready to pay", o.ID),
	}
}

// Notifier fans an alert out to sound, system notification and speech.
// Every sink is best effort: failures are logged and never returned.
type Notifier struct {
	sound  SoundPlayer
	system SystemNotifier
	speech Speaker

	RetryDelay time.Duration

	mu           sync.Mutex
	soundEnabled bool
	retry        *time.Timer
	closed       bool
}

// NewNotifier accepts nil for any sink that is not available.
func NewNotifier(sound SoundPlayer, system SystemNotifier, speech Speaker) *Notifier {
	return &Notifier{
		sound:      sound,
		system:     system,
		speech:     speech,
		RetryDelay: 500 * time.Millisecond,
	}
}

// EnableSound primes the player. Until it succeeds alerts are silent.
func (n *Notifier) EnableSound() error {
	if n.sound == nil {
		return nil
	}
	if err := n.sound.Prime(); err != nil {
		utils.ErrorLogger.Warnf("Sound could not be enabled: %v", err)
		return err
	}
	n.mu.Lock()
	n.soundEnabled = true
	n.mu.Unlock()
	return nil
}

func (n *Notifier) SoundEnabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.soundEnabled
}

func (n *Notifier) Notify(a Alert) {
	log := utils.InfoLogger.WithFields(logrus.Fields{"order_id": a.OrderID, "alert": a.Title})
	log.Info(a.Body)

	n.playSound()
	n.showSystem(a)
	n.say(a.Speech)
}

// Close cancels a pending sound retry and silences in-flight speech.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	if n.retry != nil {
		n.retry.Stop()
		n.retry = nil
	}
	n.mu.Unlock()

	if n.speech != nil {
		guard("speech cancel", n.speech.Cancel)
	}
}

func (n *Notifier) playSound() {
	n.mu.Lock()
	enabled := n.soundEnabled && !n.closed
	n.mu.Unlock()
	if !enabled || n.sound == nil {
		return
	}

	var err error
	guard("sound", func() { err = n.sound.Play() })
	if err == nil {
		return
	}
	utils.ErrorLogger.Warnf("Sound failed, retrying in %s: %v", n.RetryDelay, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.retry != nil {
		n.retry.Stop()
	}
	n.retry = time.AfterFunc(n.RetryDelay, func() {
		n.mu.Lock()
		n.retry = nil
		closed := n.closed
		n.mu.Unlock()
		if closed {
			return
		}
		guard("sound retry", func() {
			if err := n.sound.Play(); err != nil {
				utils.ErrorLogger.Warnf("Sound retry failed, giving up: %v", err)
			}
		})
	})
}

func (n *Notifier) showSystem(a Alert) {
	if n.system == nil {
		return
	}
	guard("system notification", func() {
		if !n.system.Permission() {
			return
		}
		if err := n.system.Notify(a.Title, a.Body); err != nil {
			utils.ErrorLogger.Warnf("System notification failed: %v", err)
		}
	})
}

func (n *Notifier) say(text string) {
	if n.speech == nil || text == "" {
		return
	}
	guard("speech", func() {
		n.speech.Cancel()
		if err := n.speech.Speak(text); err != nil {
			utils.ErrorLogger.Warnf("Speech failed: %v", err)
		}
	})
}

func guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			utils.ErrorLogger.Warnf("Notification %s panicked: %v", what, r)
		}
	}()
	fn()
}
