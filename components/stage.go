package components

// Stage is a phase of a bloom's lifecycle.
type Stage uint8

const (
	StageSeed Stage = iota
	StageGerminating
	StageBudding
	StageFlowering
	StageFruiting
	StageWilting
	StageSealed    // terminal: preserved
	StageComposted // terminal: returned to the ambient pool
)

// NumStages is the number of lifecycle stages.
const NumStages = int(StageComposted) + 1

var stageNames = [NumStages]string{
	"seed", "germinating", "budding", "flowering",
	"fruiting", "wilting", "sealed", "composted",
}

// String returns the lowercase name of the stage.
func (s Stage) String() string {
	if int(s) < NumStages {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether the stage ends the bloom's life.
func (s Stage) Terminal() bool {
	return s == StageSealed || s == StageComposted
}

// AllStages returns every stage in lifecycle order.
func AllStages() []Stage {
	stages := make([]Stage, NumStages)
	for i := range stages {
		stages[i] = Stage(i)
	}
	return stages
}

// CanFollow reports whether next is a legal successor of s.
func (s Stage) CanFollow(next Stage) bool {
	switch s {
	case StageSeed, StageGerminating, StageBudding, StageFlowering, StageFruiting:
		return next == s+1
	case StageWilting:
		return next == StageSealed || next == StageComposted
	case StageSealed, StageComposted:
		return false
	default:
		panic("components: unknown stage " + s.String())
	}
}
