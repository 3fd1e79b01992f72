package chat

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/metrics"
)

// CleanupScheduler force-closes conversations that have been open longer
// than maxAge, sweeping on a jittered interval so multiple instances do not
// all fire at once. Conversations within warnLead of the cutoff get a single
// inactivity warning before the close.
type CleanupScheduler struct {
	store    *store.Store
	sm       *StateMachine
	notifier *Notifier
	clock    clock.Clock
	logger   *logger.Logger

	interval time.Duration
	maxAge   time.Duration
	warnLead time.Duration
}

// NewCleanupScheduler creates a scheduler. interval is the sweep period,
// maxAge the open-conversation cutoff, and warnLead how long before the
// cutoff the inactivity warning fires (zero disables warnings).
func NewCleanupScheduler(
	st *store.Store,
	sm *StateMachine,
	notifier *Notifier,
	clk clock.Clock,
	interval, maxAge, warnLead time.Duration,
	log *logger.Logger,
) *CleanupScheduler {
	return &CleanupScheduler{
		store:    st,
		sm:       sm,
		notifier: notifier,
		clock:    clk,
		logger:   log,
		interval: interval,
		maxAge:   maxAge,
		warnLead: warnLead,
	}
}

// Run sweeps until the context is cancelled.
func (s *CleanupScheduler) Run(ctx context.Context) {
	s.logger.Info("cleanup scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))
	for {
		timer := time.NewTimer(s.jitteredInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("cleanup scheduler stopped")
			return
		case <-timer.C:
		}
		if n, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("cleanup sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("cleanup sweep closed conversations", zap.Int("count", n))
		}
	}
}

// RunOnce performs a single sweep and returns how many conversations it
// closed. Per-conversation failures are logged and the sweep continues.
func (s *CleanupScheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.store.Conversations.ListOpenBefore(ctx, now.Add(-s.maxAge))
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, conv := range stale {
		c, changed, err := s.sm.Close(ctx, conv.ID)
		if err != nil {
			s.logger.Error("cleanup close failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
			continue
		}
		if !changed {
			// raced a live close, which already notified
			continue
		}
		closed++
		metrics.CleanupClosedTotal.Inc()
		s.notifyClosed(ctx, c)
	}

	if err := s.warnApproaching(ctx, now); err != nil {
		s.logger.Error("cleanup warning pass failed", zap.Error(err))
	}
	return closed, nil
}

// warnApproaching stamps WarningSentAt on conversations inside the warning
// window and notifies their agent or the admins, once per conversation. Runs
// after the close pass so conversations past the cutoff are never warned.
func (s *CleanupScheduler) warnApproaching(ctx context.Context, now time.Time) error {
	if s.warnLead <= 0 || s.warnLead >= s.maxAge {
		return nil
	}
	pending, err := s.store.Conversations.ListOpenBefore(ctx, now.Add(s.warnLead-s.maxAge))
	if err != nil {
		return err
	}

	for _, conv := range pending {
		if conv.WarningSentAt != nil {
			continue
		}
		c, changed, err := s.sm.apply(ctx, conv.ID, func(c *model.Conversation) (bool, error) {
			if c.IsClosed() || c.WarningSentAt != nil {
				return false, nil
			}
			t := now
			c.WarningSentAt = &t
			c.UpdatedAt = now
			return true, nil
		})
		if err != nil {
			s.logger.Error("cleanup warning failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
			continue
		}
		if changed {
			s.notifyWarning(ctx, c)
		}
	}
	return nil
}

func (s *CleanupScheduler) notifyClosed(ctx context.Context, conv *model.Conversation) {
	if s.notifier == nil {
		return
	}
	convID := conv.ID
	const title = "Conversation closed for inactivity"
	var err error
	if conv.AssignedAgentID != nil {
		_, err = s.notifier.Notify(ctx, model.NotificationConversationClosed,
			title, "", &convID, []int64{*conv.AssignedAgentID})
	} else {
		_, err = s.notifier.NotifyAdmins(ctx, model.NotificationConversationClosed,
			title, "", &convID)
	}
	if err != nil {
		s.logger.Warn("cleanup notification failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}
}

func (s *CleanupScheduler) notifyWarning(ctx context.Context, conv *model.Conversation) {
	if s.notifier == nil {
		return
	}
	convID := conv.ID
	const title = "Conversation will close soon for inactivity"
	var err error
	if conv.AssignedAgentID != nil {
		_, err = s.notifier.Notify(ctx, model.NotificationInactivityWarning,
			title, "", &convID, []int64{*conv.AssignedAgentID})
	} else {
		_, err = s.notifier.NotifyAdmins(ctx, model.NotificationInactivityWarning,
			title, "", &convID)
	}
	if err != nil {
		s.logger.Warn("warning notification failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}
}

// jitteredInterval spreads sweeps within ±10% of the base interval.
func (s *CleanupScheduler) jitteredInterval() time.Duration {
	spread := int64(s.interval) / 10
	if spread == 0 {
		return s.interval
	}
	return s.interval + time.Duration(rand.Int63n(2*spread)-spread)
}
