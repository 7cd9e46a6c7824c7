package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/internal/platform"
	"github.com/mgrall/skald/internal/report"
	"github.com/mgrall/skald/pkg/message"
)

// platformSink delivers flushed report batches as chat messages into the
// scope that produced them.
type platformSink struct {
	host *core.Host
}

var _ report.Sink = (*platformSink)(nil)

func (s *platformSink) Deliver(ctx context.Context, batch report.Batch) error {
	scope := message.Scope{ID: batch.Scope, Type: message.ScopeGuild}
	if batch.Scope == "" {
		scope = message.Scope{Type: message.ScopeDirect}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", batch.Category)
	for _, e := range batch.Entries {
		b.WriteString("\n")
		b.WriteString(e.Payload)
	}

	return s.host.Send(ctx, message.Reply{Scope: scope, Text: b.String()})
}

// reporterSettings adapts the reporter section of the live configuration.
func reporterSettings(store *config.Store) func() report.Settings {
	return func() report.Settings {
		rc := store.Snapshot().Reporter
		return report.Settings{
			FlushInterval: time.Duration(rc.FlushInterval) * time.Second,
			MaxBufferSize: rc.MaxBufferSize,
		}
	}
}

// wirePlatform connects the platform client a module published in the
// service registry. Must run after LoadAll so core modules had their
// chance to register one; running without a client is fine, the gateway
// console still works.
func wirePlatform(host *core.Host, logger *slog.Logger) {
	svc, ok := host.Service("platform.client")
	if !ok {
		logger.Info("no platform client loaded, chat surface disabled")
		return
	}
	client, ok := svc.(platform.Client)
	if !ok {
		logger.Warn("service platform.client does not implement platform.Client")
		return
	}

	client.SetInbox(func(ev message.InboundEvent) error {
		host.HandleInbound(context.Background(), ev)
		return nil
	})
	host.PlatformConnected(client)
	logger.Info("platform connected")
}
