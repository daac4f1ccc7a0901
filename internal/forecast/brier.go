package forecast

// BrierScore is the squared error between a probability forecast and the
// realized outcome (0 or 1). Lower is better; 0.25 is the score of an
// uninformative 0.5 forecast.
func BrierScore(probability, outcome float64) float64 {
	d := probability - outcome
	return d * d
}
