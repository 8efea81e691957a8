package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rbmathsacademy/rbmathsapp-sub001/internal/repository"
)

// Closer flips deployed tests to completed once their window ends. It only
// ever touches test status; in-progress attempts still finish through submit
// or an administrator's force-complete.
type Closer struct {
	log *zap.Logger
}

func NewCloser(log *zap.Logger) *Closer {
	return &Closer{log: log}
}

// Start runs the closer in a goroutine.
func (c *Closer) Start() {
	c.log.Info("Starting test window closer...")
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			<-ticker.C
			c.runCloseCheck()
		}
	}()
}

func (c *Closer) runCloseCheck() {
	closed, err := repository.CloseExpiredTests(context.Background(), time.Now().UTC())
	if err != nil {
		c.log.Error("Failed to close expired tests", zap.Error(err))
		return
	}
	if closed > 0 {
		c.log.Info("Closed expired tests", zap.Int("count", closed))
	}
}
