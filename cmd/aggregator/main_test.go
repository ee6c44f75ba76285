package main

import (
	"sync/atomic"
	"testing"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func TestScheduledJob_SkipsOverlappingRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32

	job := scheduledJob(cron.FuncJob(func() {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
	}), cronLogger{logger: zap.NewNop().Sugar()})

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	// Returns at once while the first run still holds the job
	job.Run()
	close(release)
	<-done

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}
}

func TestScheduledJob_RecoversPanic(t *testing.T) {
	job := scheduledJob(cron.FuncJob(func() {
		panic("boom")
	}), cronLogger{logger: zap.NewNop().Sugar()})

	job.Run()
	job.Run()
}
