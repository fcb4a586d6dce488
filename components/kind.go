package components

import "fmt"

// Kind identifies what sort of bloom an entity is.
type Kind uint8

const (
	KindInsight Kind = iota
	KindMemory
	KindCreative
	KindEmotional
	KindLogical
	KindIntuitive
	KindQuantum
	KindSynthetic
)

// NumKinds is the number of bloom kinds.
const NumKinds = int(KindSynthetic) + 1

var kindNames = [NumKinds]string{
	"insight", "memory", "creative", "emotional",
	"logical", "intuitive", "quantum", "synthetic",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if int(k) < NumKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return int(k) < NumKinds
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, NumKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bloom kind %q", name)
}
