package httpagent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/pkg/tool"
)

// permissionWatcher polls the agent's pending-permission list for the
// duration of one turn and answers requests belonging to its remote
// session. It never outlives the turn: the runner signals it to stop,
// waits a bounded grace period, then cancels it outright.
type permissionWatcher struct {
	client        *Client
	remoteSession string
	toolCtx       tool.Context
	sessionID     string
	logger        zerolog.Logger

	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

func startWatcher(parent context.Context, client *Client, remoteSession, sessionID string, tc tool.Context, logger zerolog.Logger) *permissionWatcher {
	ctx, cancel := context.WithCancel(parent)
	w := &permissionWatcher{
		client:        client,
		remoteSession: remoteSession,
		toolCtx:       tc,
		sessionID:     sessionID,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		cancel:        cancel,
	}
	go w.run(ctx)
	return w
}

func (w *permissionWatcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.client.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			// One last sweep so a request raised just before the turn
			// response does not hang the agent.
			w.sweep(ctx)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep lists pending requests and answers the ones for this session.
// Poll and reply failures are logged and left for the next tick; they
// never fail the turn.
func (w *permissionWatcher) sweep(ctx context.Context) {
	pending, err := w.client.ListPermissions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Debug().Err(err).Msg("Permission poll failed, will retry")
		}
		return
	}

	for _, req := range pending {
		if req.SessionID != w.remoteSession {
			continue
		}

		reply, reason := decidePermission(req, w.toolCtx)
		observability.RecordPermissionDecision(req.Type, reply)
		observability.RecordPermissionAudit(ctx, w.sessionID, req.Type, reply, req.Patterns)

		if err := w.client.ReplyPermission(ctx, req.ID, reply, reason); err != nil {
			if ctx.Err() == nil {
				w.logger.Debug().Err(err).Str("permission_id", req.ID).Msg("Permission reply failed, will retry")
			}
			continue
		}

		w.logger.Info().
			Str("permission_id", req.ID).
			Str("kind", req.Type).
			Str("reply", reply).
			Strs("patterns", req.Patterns).
			Msg("Answered permission request")
	}
}

// Stop signals the watcher, waits up to the configured grace period for it
// to drain, then cancels it.
func (w *permissionWatcher) Stop() {
	close(w.stop)
	select {
	case <-w.done:
	case <-time.After(w.client.watcherGrace):
		w.cancel()
		<-w.done
	}
	w.cancel()
}
