package reward

// Tier is a reputation band selected by an operator's cumulative cycle count.
type Tier struct {
	Name string

	// Below is the exclusive upper bound of the band. Zero means unbounded.
	Below int64

	Weight float64
}

// Tiers are ordered by Below. The last tier is unbounded.
var Tiers = []Tier{
	{Name: "very_young", Below: 50, Weight: 0.6},
	{Name: "young", Below: 100, Weight: 0.7},
	{Name: "mature", Below: 200, Weight: 0.8},
	{Name: "old", Below: 300, Weight: 0.9},
	{Name: "very_old", Weight: 1.0},
}

// TierFor returns the tier for a cycle count.
func TierFor(cycles int64) Tier {
	for _, t := range Tiers {
		if t.Below == 0 || cycles < t.Below {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

// Weight returns the reputation weight for a cycle count.
func Weight(cycles int64) float64 {
	return TierFor(cycles).Weight
}
