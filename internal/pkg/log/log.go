// Package log add logging utilities.
package log

import (
	"net/netip"
	"strings"
	"time"

	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/wire"

	"github.com/sirupsen/logrus"
)

// SetLogger sets the default logger's level.
func SetLogger(level string) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	switch strings.ToLower(level) {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.ErrorLevel)
	}
}

func SessionToFields(sess *session.Session) logrus.Fields {
	return logrus.Fields{
		"session":  sess.ID,
		"endpoint": sess.Endpoint.String(),
		"trace":    sess.TraceID.String(),
		"trust":    sess.Trust,
		"pending":  len(sess.Pending),
	}
}

func HeaderToFields(from netip.AddrPort, h wire.Header) logrus.Fields {
	return logrus.Fields{
		"endpoint": from.String(),
		"type":     h.Type.String(),
		"id":       h.ID,
	}
}
