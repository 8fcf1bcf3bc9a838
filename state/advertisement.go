package state

// RouteAdvertisement is a single add or withdraw of a route between two RIBs
type RouteAdvertisement[R any] struct {
	Route     R
	Withdrawn bool
}

func Advertise[R any](r R) RouteAdvertisement[R] {
	return RouteAdvertisement[R]{Route: r}
}

func Withdraw[R any](r R) RouteAdvertisement[R] {
	return RouteAdvertisement[R]{Route: r, Withdrawn: true}
}

// Cancels is true when a and o refer to the same route with opposite withdrawn flags
func (a RouteAdvertisement[R]) Cancels(o RouteAdvertisement[R], eq func(R, R) bool) bool {
	return a.Withdrawn != o.Withdrawn && eq(a.Route, o.Route)
}

// CancelOut removes every pair of advertisements that cancel each other. The remaining advertisements keep their
// relative order.
func CancelOut[R any](advs []RouteAdvertisement[R], eq func(R, R) bool) []RouteAdvertisement[R] {
	removed := make([]bool, len(advs))
	for i := range advs {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(advs); j++ {
			if !removed[j] && advs[i].Cancels(advs[j], eq) {
				removed[i] = true
				removed[j] = true
				break
			}
		}
	}
	out := make([]RouteAdvertisement[R], 0, len(advs))
	for i, a := range advs {
		if !removed[i] {
			out = append(out, a)
		}
	}
	return out
}
