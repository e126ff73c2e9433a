package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor is one periodic maintenance task. The function returns how many
// items it cleaned up so quiet ticks stay quiet in the logs.
type Janitor struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Group runs a set of janitors, each on its own ticker. Stop cancels the
// shared context and waits for every loop to return.
type Group struct {
	janitors []Janitor
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewGroup(janitors ...Janitor) *Group {
	return &Group{janitors: janitors}
}

func (g *Group) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	for _, j := range g.janitors {
		g.wg.Add(1)
		go g.loop(ctx, j)
		log.Info().Str("janitor", j.Name).Dur("interval", j.Interval).Msg("janitor started")
	}
}

func (g *Group) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	g.wg.Wait()
	log.Info().Msg("janitors stopped")
}

func (g *Group) loop(ctx context.Context, j Janitor) {
	defer g.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	g.tick(ctx, j)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(ctx, j)
		}
	}
}

// tick runs one sweep. A panicking janitor must not take the process down;
// the next tick gets another chance.
func (g *Group) tick(ctx context.Context, j Janitor) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("janitor", j.Name).Msg("janitor panicked")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := j.Run(runCtx)
	if err != nil {
		log.Error().Err(err).Str("janitor", j.Name).Msg("janitor sweep failed")
	} else if count > 0 {
		log.Info().Int64("count", count).Str("janitor", j.Name).Msg("janitor sweep done")
	}
}
