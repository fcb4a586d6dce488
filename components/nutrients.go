package components

import "sort"

// Nutrient names an ambient resource.
type Nutrient string

// Nutrients in the default ambient pool.
const (
	NutrientConsciousness Nutrient = "consciousness"
	NutrientMemory        Nutrient = "memory"
	NutrientEmotion       Nutrient = "emotion"
	NutrientLogic         Nutrient = "logic"
	NutrientCreativity    Nutrient = "creativity"
)

// Affinity classifies how a dominant nutrient shapes a pattern.
type Affinity uint8

const (
	AffinityNone Affinity = iota
	AffinityCreative
	AffinityLogical
	AffinityEmotional
)

// Affinity returns the pattern transform associated with the nutrient.
func (n Nutrient) Affinity() Affinity {
	switch n {
	case NutrientCreativity:
		return AffinityCreative
	case NutrientLogic:
		return AffinityLogical
	case NutrientEmotion:
		return AffinityEmotional
	default:
		return AffinityNone
	}
}

// Energy weights per nutrient store.
const (
	PrimaryWeight  = 1.0
	CatalystWeight = 2.0
	TraceWeight    = 0.5
)

// Nutrients is a bloom's nutrient budget.
type Nutrients struct {
	Primary  map[Nutrient]float64
	Catalyst map[Nutrient]float64
	Trace    map[Nutrient]float64
}

// NewNutrients returns a budget with empty stores.
func NewNutrients() Nutrients {
	return Nutrients{
		Primary:  make(map[Nutrient]float64),
		Catalyst: make(map[Nutrient]float64),
		Trace:    make(map[Nutrient]float64),
	}
}

// TotalEnergy returns the weighted sum of every store.
func (n *Nutrients) TotalEnergy() float64 {
	return sum(n.Primary)*PrimaryWeight +
		sum(n.Catalyst)*CatalystWeight +
		sum(n.Trace)*TraceWeight
}

// Dominant returns the nutrient with the largest amount across all stores.
// Ties go to the lexically smallest name. ok is false when every store is empty.
func (n *Nutrients) Dominant() (name Nutrient, amount float64, ok bool) {
	for _, store := range []map[Nutrient]float64{n.Primary, n.Catalyst, n.Trace} {
		for _, k := range SortedNutrients(store) {
			v := store[k]
			if !ok || v > amount || (v == amount && k < name) {
				name, amount, ok = k, v, true
			}
		}
	}
	return name, amount, ok
}

// SortedNutrients returns the keys of m in lexical order.
func SortedNutrients(m map[Nutrient]float64) []Nutrient {
	keys := make([]Nutrient, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// sum adds in key order so seeded runs reproduce bit-for-bit.
func sum(m map[Nutrient]float64) float64 {
	var s float64
	for _, k := range SortedNutrients(m) {
		s += m[k]
	}
	return s
}
