package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"courselite/utils"
)

// FlowWorker periodically sweeps due flow executions. It shares the state
// machine with the cron HTTP endpoint; the pending-status guard keeps the
// two from double-sending.
type FlowWorker struct {
	DB       *gorm.DB
	Engine   *utils.FlowEngine
	Logger   *log.Logger
	Interval time.Duration
}

func NewFlowWorker(db *gorm.DB, engine *utils.FlowEngine, logger *log.Logger, interval time.Duration) *FlowWorker {
	return &FlowWorker{
		DB:       db,
		Engine:   engine,
		Logger:   logger,
		Interval: interval,
	}
}

func (fw *FlowWorker) Start(ctx context.Context) {
	fw.Logger.Printf("Flow worker started (interval %s)", fw.Interval)

	ticker := time.NewTicker(fw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fw.Logger.Println("Flow worker shutting down...")
			return
		case <-ticker.C:
			fw.sweep()
		}
	}
}

func (fw *FlowWorker) sweep() {
	summary, err := fw.Engine.ProcessPending(time.Now())
	if err != nil {
		fw.Logger.Printf("Error processing pending flows: %v", err)
		utils.LogError("flow_sweep", err, nil)
		return
	}

	if summary.Processed > 0 {
		fw.Logger.Printf("Sweep complete: %d processed, %d sent, %d failed",
			summary.Processed, summary.Sent, summary.Failed)
	}
}
