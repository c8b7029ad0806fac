package services

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/utils"
)

// Presenter renders board or session state. Calls may come from any goroutine.
type Presenter interface {
	OrdersChanged(orders []models.Order)
	ConnectionChanged(connected bool)
	// Toast is a transient message.
	Toast(msg string)
	// Warning stays visible until the condition clears.
	Warning(msg string)
}

// LogPresenter renders through the loggers; used by the headless board.
type LogPresenter struct {
	Name string
}

func (p LogPresenter) OrdersChanged(orders []models.Order) {
	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		line := fmt.Sprintf("#%d %s", o.ID, o.Status)
		if table := o.TableLabel(); table != "" {
			line += " (" + table + ")"
		}
		lines = append(lines, line)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"board": p.Name, "count": len(orders)}).
		Info("Orders: " + strings.Join(lines, ", "))
}

func (p LogPresenter) ConnectionChanged(connected bool) {
	if connected {
		utils.InfoLogger.WithField("board", p.Name).Info("Live updates connected")
		return
	}
	utils.ErrorLogger.WithField("board", p.Name).Warn("Live updates disconnected, falling back to polling")
}

func (p LogPresenter) Toast(msg string) {
	utils.InfoLogger.WithField("board", p.Name).Info(msg)
}

func (p LogPresenter) Warning(msg string) {
	utils.ErrorLogger.WithField("board", p.Name).Warn(msg)
}
