package sim

// Window returns the reference samples [t, t+horizon] used by the solve at
// step t. Samples past the end of ref repeat its last sample, so the window
// always holds horizon+1 entries. A nil ref yields a nil window.
func Window(ref []State, t, horizon int) []State {
	if ref == nil {
		return nil
	}
	window := make([]State, horizon+1)
	for i := range window {
		idx := min(t+i, len(ref)-1)
		window[i] = ref[idx].Clone()
	}
	return window
}
