// Package auction routes a task to the best-suited specialist via a
// sealed-bid second-price auction. Resolution is deterministic: a fixed
// bid set always yields the same winner and clearing price.
package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

// DefaultWindow bounds how long the router waits for bids.
const DefaultWindow = 2 * time.Second

// Config holds auction router configuration.
type Config struct {
	// Window is the bid collection window (default: 2s)
	Window time.Duration

	// DefaultSpecialist is selected when no bids arrive. Empty means "no
	// bids" is an error the caller must handle.
	DefaultSpecialist string

	// Bus is optional; auction outcomes are published when set
	Bus *events.Bus
}

// Router runs sealed-bid auctions. It never retries a round on its own;
// callers decide whether no bids is fatal.
type Router struct {
	window            time.Duration
	defaultSpecialist string
	bus               *events.Bus
}

// NewRouter creates an auction router.
func NewRouter(cfg *Config) *Router {
	window := DefaultWindow
	var defaultSpecialist string
	var bus *events.Bus
	if cfg != nil {
		if cfg.Window > 0 {
			window = cfg.Window
		}
		defaultSpecialist = cfg.DefaultSpecialist
		bus = cfg.Bus
	}
	return &Router{window: window, defaultSpecialist: defaultSpecialist, bus: bus}
}

// effectiveRatio is the bid score: confidence / (1 + declared cost).
func effectiveRatio(b types.Bid) float64 {
	return b.Confidence / (1 + b.DeclaredCost)
}

// Route collects one sealed bid from each eligible specialist within the
// window and resolves the winner. Specialists that error, decline, or
// miss the window simply contribute no bid. Bids are discarded after
// resolution.
func (r *Router) Route(ctx context.Context, runID string, task types.Task, specialists []types.Specialist) (*types.Winner, error) {
	collectCtx, cancel := context.WithTimeout(ctx, r.window)
	defer cancel()

	var mu sync.Mutex
	var bids []types.Bid
	var wg sync.WaitGroup
	for _, specialist := range specialists {
		wg.Add(1)
		go func(s types.Specialist) {
			defer wg.Done()
			bid, err := s.Bid(collectCtx, task)
			if err != nil || bid == nil {
				return
			}
			if err := bid.Validate(); err != nil {
				return
			}
			mu.Lock()
			bids = append(bids, *bid)
			mu.Unlock()
		}(specialist)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-collectCtx.Done():
		// Window closed; whatever arrived in time competes.
	}

	mu.Lock()
	collected := make([]types.Bid, len(bids))
	copy(collected, bids)
	mu.Unlock()

	winner, err := Resolve(collected)
	if err != nil {
		if r.defaultSpecialist != "" {
			winner = &types.Winner{SpecialistID: r.defaultSpecialist, ClearingPrice: 0}
			r.publish(events.NewEvent(runID, "", events.EventTypeAuctionNoBids, events.SeverityWarning,
				fmt.Sprintf("no bids for task %q, using default specialist %s", task.Name, r.defaultSpecialist)))
			return winner, nil
		}
		r.publish(events.NewEvent(runID, "", events.EventTypeAuctionNoBids, events.SeverityWarning,
			fmt.Sprintf("no bids for task %q and no default specialist", task.Name)))
		return nil, err
	}

	evt := events.NewEvent(runID, "", events.EventTypeAuctionResolved, events.SeverityInfo,
		fmt.Sprintf("task %q awarded to %s", task.Name, winner.SpecialistID))
	evt.Payload = map[string]interface{}{
		"specialist_id":  winner.SpecialistID,
		"clearing_price": winner.ClearingPrice,
		"bid_count":      len(collected),
	}
	r.publish(evt)
	return winner, nil
}

// Resolve picks the winner from a sealed bid set. Highest effective
// ratio wins; ties break by lower declared cost, then by specialist
// identity, so repeated resolution of the same set is reproducible.
// Clearing uses second-price semantics: the winner is charged the cost
// its own confidence would imply at the runner-up's ratio. That price is
// never below the winner's declared cost, which is what makes honest
// cost declarations the dominant strategy.
func Resolve(bids []types.Bid) (*types.Winner, error) {
	if len(bids) == 0 {
		return nil, types.ErrNoBids
	}

	sorted := make([]types.Bid, len(bids))
	copy(sorted, bids)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := effectiveRatio(sorted[i]), effectiveRatio(sorted[j])
		if ri != rj {
			return ri > rj
		}
		if sorted[i].DeclaredCost != sorted[j].DeclaredCost {
			return sorted[i].DeclaredCost < sorted[j].DeclaredCost
		}
		return sorted[i].SpecialistID < sorted[j].SpecialistID
	})

	best := sorted[0]
	price := best.DeclaredCost
	if len(sorted) > 1 {
		runnerUp := effectiveRatio(sorted[1])
		if runnerUp > 0 {
			price = best.Confidence/runnerUp - 1
		}
		if price < 0 {
			price = 0
		}
	}
	return &types.Winner{SpecialistID: best.SpecialistID, ClearingPrice: price}, nil
}

func (r *Router) publish(evt events.Event) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(evt)
}
