// Package debug holds the developer-facing utilities that are only started
// when the server runs in debug mode.
package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// StartPprofServer starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger logrus.FieldLogger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// MessageLogger dumps decoded messages when message logging is enabled.
type MessageLogger struct {
	Logger  logrus.FieldLogger
	Enabled bool
}

// Received logs a message decoded from peerID.
func (m *MessageLogger) Received(peerID string, msg interface{}) {
	m.log("in", peerID, msg)
}

// Sent logs a message about to be encoded for peerID.
func (m *MessageLogger) Sent(peerID string, msg interface{}) {
	m.log("out", peerID, msg)
}

func (m *MessageLogger) log(direction, peerID string, msg interface{}) {
	if m == nil || !m.Enabled {
		return
	}
	m.Logger.WithFields(logrus.Fields{
		"peer":      peerID,
		"direction": direction,
	}).Debugf("%T\n%s", msg, Dump(msg))
}

// Dump renders v in a stable, human readable form.
func Dump(v interface{}) string {
	return dumper.Sdump(v)
}
