package service

import (
	"context"
	"time"
)

// StartBillingCycleRoutine wakes up once a day and runs whichever
// billing cycle phase is scheduled for that day of the month. Days are
// configurable; with the defaults the notification goes out on the 1st,
// approval requests on the 3rd and final invoices on the 5th.
func (svc *BillinghubService) StartBillingCycleRoutine(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			svc.RunScheduledPhases(ctx, now)
		}
	}
}

// RunScheduledPhases runs every phase whose configured day matches now.
func (svc *BillinghubService) RunScheduledPhases(ctx context.Context, now time.Time) {
	day := now.Day()
	if day == svc.Config.InvoiceNotificationDay {
		if err := svc.RunNotificationPhase(ctx, now); err != nil {
			svc.logPhaseFailure("notification", "scheduler", err)
		}
	}
	if day == svc.Config.InvoiceApprovalDay {
		if err := svc.RunApprovalPhase(ctx, now); err != nil {
			svc.logPhaseFailure("approval", "scheduler", err)
		}
	}
	if day == svc.Config.InvoiceFinalDay {
		if err := svc.RunFinalPhase(ctx, now); err != nil {
			svc.logPhaseFailure("final", "scheduler", err)
		}
	}
	if day == svc.Config.BulkPaymentDay {
		if _, err := svc.RunBulkPaymentJob(ctx, now); err != nil {
			svc.logPhaseFailure("bulk payment", "scheduler", err)
		}
	}
}
