package custody

import (
	"math/big"
	"time"
)

// Vesting cadence.
const (
	ReleaseInterval = 365 * 24 * time.Hour
	MaxTranches     = 10
)

type schedule struct {
	locked      *big.Int
	released    int
	lastRelease time.Time
}

func newSchedule(locked *big.Int, start time.Time) schedule {
	return schedule{locked: clone(locked), lastRelease: start}
}

// nextTranche splits the remaining reserve evenly over the remaining
// tranches. The final tranche takes whatever is left, so the reserve ends at
// exactly zero.
func (s *schedule) nextTranche() *big.Int {
	remaining := int64(MaxTranches - s.released)
	if remaining <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(s.locked, big.NewInt(remaining))
}

func (s *schedule) complete() bool { return s.released >= MaxTranches }

func (s *schedule) due(now time.Time) bool {
	return !now.Before(s.lastRelease.Add(ReleaseInterval))
}

// ScheduleStatus is a read-only view of vesting progress.
type ScheduleStatus struct {
	TranchesReleased int       `json:"tranches_released"`
	MaxTranches      int       `json:"max_tranches"`
	LockedReserve    *big.Int  `json:"locked_reserve"`
	NextTranche      *big.Int  `json:"next_tranche"`
	LastRelease      time.Time `json:"last_release"`
	NextEligible     time.Time `json:"next_eligible"`
	Complete         bool      `json:"complete"`
}

func (s *schedule) status() ScheduleStatus {
	return ScheduleStatus{
		TranchesReleased: s.released,
		MaxTranches:      MaxTranches,
		LockedReserve:    clone(s.locked),
		NextTranche:      s.nextTranche(),
		LastRelease:      s.lastRelease,
		NextEligible:     s.lastRelease.Add(ReleaseInterval),
		Complete:         s.complete(),
	}
}

// Release mints the next vesting tranche to the admin. It requires a
// completed release cycle and at least one full interval since the previous
// release (or genesis). Returns the amount released.
func (v *Vault) Release(caller Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.whenNotPaused(); err != nil {
		return nil, err
	}
	if err := v.requireAdmin(caller); err != nil {
		return nil, err
	}
	if v.vesting.complete() {
		return nil, ErrScheduleComplete
	}
	key := ActionKey(KindRelease)
	if !v.approvals.hasQuorum(key) {
		return nil, ErrQuorumNotMet
	}
	now := v.clock.Now()
	if !v.vesting.due(now) {
		return nil, ErrTooSoon
	}

	tranche := v.vesting.nextTranche()
	v.vesting.locked.Sub(v.vesting.locked, tranche)
	v.vesting.released++
	v.vesting.lastRelease = now
	if tranche.Sign() > 0 {
		v.token.mint(v.admin, tranche)
	}
	v.approvals.reset(key)
	return clone(tranche), nil
}
