// Package sim provides simulated drivers so the tracker can run on a
// development host without GPS, modem, or sensor hardware.
package sim

// Walk is a value that moves back and forth between min and max in steps.
type Walk struct {
	value    float64
	step     float64
	min, max float64
}

// NewWalk creates a walk starting at start, heading down first
func NewWalk(start, step, minVal, maxVal float64) Walk {
	return Walk{value: start, step: -step, min: minVal, max: maxVal}
}

// Next runs a walk step and returns the new value. The direction turns
// when a bound is hit.
func (w *Walk) Next() float64 {
	w.value += w.step
	switch {
	case w.value > w.max:
		w.value = w.max
		w.step = -w.step
	case w.value < w.min:
		w.value = w.min
		w.step = -w.step
	}
	return w.value
}

// Value returns the current value without stepping
func (w *Walk) Value() float64 {
	return w.value
}
