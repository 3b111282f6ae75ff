package memory

import (
	"context"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// defaultKeepInactive bounds how many claimed or expired opportunities the
// store remembers. Older inactive entries are dropped in creation order.
const defaultKeepInactive = 4096

// GetOpportunity retrieves an opportunity by its ID, active or not.
func (s *Store) GetOpportunity(_ context.Context, id string) (domain.Opportunity, error) {
	s.oppMu.RLock()
	defer s.oppMu.RUnlock()
	o, ok := s.opps[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return o, nil
}

// ListActiveOpportunities returns active opportunities in creation order.
func (s *Store) ListActiveOpportunities(_ context.Context) ([]domain.Opportunity, error) {
	s.oppMu.RLock()
	defer s.oppMu.RUnlock()
	out := make([]domain.Opportunity, 0, len(s.routes))
	for _, id := range s.oppOrder {
		if o := s.opps[id]; o.IsActive {
			out = append(out, o)
		}
	}
	return out, nil
}

// UpsertOpportunity refreshes the active opportunity on opp's route, keeping
// its ID and CreatedAt, or stores opp as a new active opportunity.
func (s *Store) UpsertOpportunity(_ context.Context, opp domain.Opportunity) (domain.Opportunity, bool, error) {
	route := opp.Route()

	s.oppMu.Lock()
	defer s.oppMu.Unlock()

	if id, ok := s.routes[route]; ok {
		cur := s.opps[id]
		cur.BuyPrice = opp.BuyPrice
		cur.SellPrice = opp.SellPrice
		cur.ProfitMargin = opp.ProfitMargin
		cur.PotentialProfit = opp.PotentialProfit
		cur.RefreshedAt = opp.RefreshedAt
		s.opps[id] = cur
		return cur, false, nil
	}

	if opp.ID == "" {
		opp.ID = newID()
	}
	if opp.RefreshedAt.IsZero() {
		opp.RefreshedAt = opp.CreatedAt
	}
	opp.IsActive = true
	s.opps[opp.ID] = opp
	s.oppOrder = append(s.oppOrder, opp.ID)
	s.routes[route] = opp.ID
	return opp, true, nil
}

// ClaimOpportunity is the compare-and-set on the active flag: the first caller
// wins, later callers get domain.ErrOpportunityInactive.
func (s *Store) ClaimOpportunity(_ context.Context, id string) (domain.Opportunity, error) {
	s.oppMu.Lock()
	defer s.oppMu.Unlock()
	o, ok := s.opps[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	if !o.IsActive {
		return domain.Opportunity{}, domain.ErrOpportunityInactive
	}
	s.pruneLocked()
	s.deactivateLocked(o)
	o.IsActive = false
	return o, nil
}

// ReleaseOpportunity reactivates a claimed opportunity. It does nothing when
// the opportunity is already active or its route has a newer active one.
func (s *Store) ReleaseOpportunity(_ context.Context, id string) error {
	s.oppMu.Lock()
	defer s.oppMu.Unlock()
	o, ok := s.opps[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.IsActive {
		return nil
	}
	if _, taken := s.routes[o.Route()]; taken {
		return nil
	}
	o.IsActive = true
	s.opps[id] = o
	s.routes[o.Route()] = id
	s.inactive--
	return nil
}

// DeactivateExpiredOpportunities deactivates every active opportunity whose
// last refresh is at least ttl before now and returns how many it touched.
func (s *Store) DeactivateExpiredOpportunities(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	s.oppMu.Lock()
	defer s.oppMu.Unlock()
	n := 0
	for _, id := range s.routes {
		if o := s.opps[id]; o.Expired(now, ttl) {
			s.deactivateLocked(o)
			n++
		}
	}
	s.pruneLocked()
	return n, nil
}

// DeactivateAllOpportunities deactivates every active opportunity.
func (s *Store) DeactivateAllOpportunities(_ context.Context) (int, error) {
	s.oppMu.Lock()
	defer s.oppMu.Unlock()
	n := 0
	for _, id := range s.routes {
		s.deactivateLocked(s.opps[id])
		n++
	}
	s.pruneLocked()
	return n, nil
}

// deactivateLocked marks o inactive and frees its route. s.oppMu must be held.
func (s *Store) deactivateLocked(o domain.Opportunity) {
	o.IsActive = false
	s.opps[o.ID] = o
	delete(s.routes, o.Route())
	s.inactive++
}

// pruneLocked drops the oldest inactive opportunities once more than
// keepInactive have accumulated, down to half of it so the compaction is
// amortised. s.oppMu must be held.
func (s *Store) pruneLocked() {
	if s.keepInactive <= 0 || s.inactive <= s.keepInactive {
		return
	}
	drop := s.inactive - s.keepInactive/2
	kept := s.oppOrder[:0]
	for _, id := range s.oppOrder {
		if drop > 0 && !s.opps[id].IsActive {
			delete(s.opps, id)
			s.inactive--
			drop--
			continue
		}
		kept = append(kept, id)
	}
	clear(s.oppOrder[len(kept):])
	s.oppOrder = kept
}
