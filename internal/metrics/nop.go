package metrics

import (
	"net/http"
	"time"
)

// NopCollector discards every measurement
type NopCollector struct{}

func (NopCollector) ClientConnected() {}

func (NopCollector) ClientDisconnected() {}

func (NopCollector) PeerAdmitted() {}

func (NopCollector) AdmissionRejected(string) {}

func (NopCollector) PeerDeparted(string, time.Duration) {}

func (NopCollector) MessageReceived(string, int) {}

func (NopCollector) MessageDropped(string) {}

func (NopCollector) MessageSent(string, int, int) {}

func (NopCollector) SendFailed(string) {}

func (NopCollector) PeersActive(int) {}

func (NopCollector) EventLogSize(int) {}

func (NopCollector) Handler() http.Handler { return http.NotFoundHandler() }
