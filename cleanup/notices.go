package cleanup

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/sirupsen/logrus"
)

// OrderCountWarnThreshold is the eligible-order count above which the
// operator is warned that the next cleanup cycle will be heavy.
const OrderCountWarnThreshold = 5000

// NoticeSink stores one-shot operator notices. Implemented by
// models.NoticeStore.
type NoticeSink interface {
	Emit(ctx context.Context, userID int, severity models.NoticeSeverity, message string) error
}

// NoticeEmitter surfaces the two operator warnings the pipeline produces.
// Neither participates in deletion correctness.
type NoticeEmitter struct {
	Notices  NoticeSink
	Schedule Schedule
	Logger   *logrus.Logger
}

func NewNoticeEmitter(notices NoticeSink, schedule Schedule, logger *logrus.Logger) *NoticeEmitter {
	return &NoticeEmitter{Notices: notices, Schedule: schedule, Logger: logger}
}

// WarnLargeVolume queues a one-shot warning for the acting operator when the
// threshold change would sweep up an unusually large number of orders.
func (e *NoticeEmitter) WarnLargeVolume(ctx context.Context, userID int, count int64) error {
	msg := fmt.Sprintf(
		"Due to the high volume of orders to be removed (over %d), please mind the website might be slightly slower for the time being.",
		OrderCountWarnThreshold,
	)
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"module":  "cleanup",
			"user_id": userID,
			"count":   count,
		}).Warn("large retention volume pending")
	}
	return e.Notices.Emit(ctx, userID, models.NoticeSeverityError, msg)
}

// ScheduleMissing reports whether the entry stage has no pending trigger.
// Checked at display time; the warning self-heals once the operator resaves
// the frequency.
func (e *NoticeEmitter) ScheduleMissing(ctx context.Context) (bool, error) {
	pending, err := e.Schedule.IsPending(ctx, string(StageMarkOrders))
	if err != nil {
		return false, err
	}
	return !pending, nil
}

// ScheduleMissingMessage is the warning body shown when no cleanup run is
// scheduled.
const ScheduleMissingMessage = "Order retention needs some attention. No cleanup run is scheduled; please confirm the retention settings."
