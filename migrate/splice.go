package migrate

import (
	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/marker"
)

// splice writes received markers over departed ones and closes any remaining
// gaps by moving markers down from the end of the array.
func (e *Engine) splice(set *marker.Set, departing int) error {
	me := e.t.Rank()
	n := set.Len()

	e.vacated = e.vacated[:0]
	for i := 0; i < n; i++ {
		if e.leave[i] {
			e.vacated = append(e.vacated, i)
		}
	}
	if len(e.vacated) != departing {
		return fault.Topologyf(
			me, "%d markers are flagged to leave, but %d were queued.",
			len(e.vacated), departing,
		)
	}

	next := n + len(e.recv) - len(e.vacated)
	if next > n {
		if err := set.Resize(next); err != nil {
			return err
		}
	}
	ms := set.Markers()

	if len(e.recv) >= len(e.vacated) {
		for j := range e.recv {
			if j < len(e.vacated) {
				ms[e.vacated[j]] = e.recv[j]
				e.leave[e.vacated[j]] = false
			} else {
				ms[n+j-len(e.vacated)] = e.recv[j]
			}
		}
	} else {
		for j := range e.recv {
			ms[e.vacated[j]] = e.recv[j]
			e.leave[e.vacated[j]] = false
		}

		holes := e.vacated[len(e.recv):]
		tail := n - 1
		for h := 0; h < len(holes) && holes[h] < next; h++ {
			for tail >= 0 && e.leave[tail] {
				tail--
			}
			if tail < next {
				return fault.Topologyf(
					me, "ran out of resident markers while filling slot %d.",
					holes[h],
				)
			}
			ms[holes[h]] = ms[tail]
			e.leave[holes[h]] = false
			e.leave[tail] = true
			tail--
		}
	}

	for i := 0; i < n; i++ {
		e.leave[i] = false
	}
	return set.Resize(next)
}
