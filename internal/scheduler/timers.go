package scheduler

import "time"

// arm schedules the single wake-up for id at the given instant, replacing
// any existing one. The version counter invalidates callbacks from timers
// that were already stopped but had fired into the runtime queue.
func (s *Service) arm(id string, at time.Time) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	ver := s.vers[id] + 1
	s.vers[id] = ver
	s.wakeAt[id] = at

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.fire(id, ver)
	})
}

// disarm cancels the wake-up for id. Idempotent; safe on ids that were
// never armed. The version bump drops any callback already in flight.
func (s *Service) disarm(id string) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
		delete(s.wakeAt, id)
	}
	s.vers[id]++
}

// timerCurrent reports whether a callback carrying ver is still the live
// wake-up for id.
func (s *Service) timerCurrent(id string, ver uint64) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return !s.stopped && s.vers[id] == ver
}

// armedTarget reports the instant id is armed for, if any.
func (s *Service) armedTarget(id string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	at, ok := s.wakeAt[id]
	return at, ok
}
