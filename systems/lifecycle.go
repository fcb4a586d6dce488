package systems

import (
	"math"

	"github.com/pthm-cable/garden/components"
)

// Transition guards.
const (
	GerminateEnergy  = 0.2
	BudHealth        = 0.5
	FlowerMaturity   = 0.3
	FlowerEnergy     = 0.5
	FruitInsight     = 0.7 // FLOWERING bears fruit early above this
	WiltHealth       = 0.3
	ExpireHealth     = 0.1
	SealInsight      = 0.5
	SealInteractions = 5
)

// Growth and health constants, per simulated second where rates.
const (
	MaturityRate   = 0.01
	MaxMaturity    = 1.0
	HealthDecay    = 0.01
	HealthRegen    = 0.02
	StarvingEnergy = 0.2
	WellFedEnergy  = 0.8
	CoherentDecay  = 0.7 // Coherence above this halves decay
	RegenEnergy    = 0.6
	RegenCoherence = 0.5
)

// Mature advances a bloom's maturity. It never decreases.
func Mature(v *components.Vitals, dt float64) {
	if dt <= 0 {
		return
	}
	v.Maturity = math.Min(MaxMaturity, v.Maturity+dt*MaturityRate)
}

// UpdateHealth applies one tick of decay and regeneration.
func UpdateHealth(v *components.Vitals, stage components.Stage, energy, coherence, dt float64) {
	decay := HealthDecay * dt
	switch stage {
	case components.StageFlowering:
		decay *= 0.5
	case components.StageWilting:
		decay *= 2
	}
	if energy < StarvingEnergy {
		decay *= 2
	} else if energy > WellFedEnergy {
		decay *= 0.5
	}
	if coherence > CoherentDecay {
		decay *= 0.5
	}

	// Decay bottoms out at 0 before regeneration is credited
	health := math.Max(0, v.Health-decay)
	if (stage == components.StageBudding || stage == components.StageFlowering) &&
		energy > RegenEnergy && coherence > RegenCoherence {
		health += HealthRegen * dt
	}
	v.Health = Clamp01(health)
}

// NextStage evaluates the transition guard for stage. It returns the stage to
// enter and true when the bloom should move on. Terminal stages never move.
func NextStage(stage components.Stage, timeInStage float64, v *components.Vitals, energy float64, durations *[components.NumStages]float64) (components.Stage, bool) {
	nominal := durations[stage]

	switch stage {
	case components.StageSeed:
		if timeInStage >= nominal && energy > GerminateEnergy {
			return components.StageGerminating, true
		}
	case components.StageGerminating:
		if timeInStage >= nominal && v.Health > BudHealth {
			return components.StageBudding, true
		}
	case components.StageBudding:
		if v.Maturity > FlowerMaturity && energy > FlowerEnergy {
			return components.StageFlowering, true
		}
	case components.StageFlowering:
		if v.Insight > FruitInsight || timeInStage > nominal {
			return components.StageFruiting, true
		}
	case components.StageFruiting:
		if v.Health < WiltHealth || timeInStage > nominal {
			return components.StageWilting, true
		}
	case components.StageWilting:
		if v.Health < ExpireHealth || timeInStage > nominal {
			return Fate(v), true
		}
	case components.StageSealed, components.StageComposted:
	default:
		panic("systems: unknown stage " + stage.String())
	}
	return stage, false
}

// Fate picks the terminal stage for a wilting bloom.
func Fate(v *components.Vitals) components.Stage {
	if v.Insight > SealInsight && v.Interactions > SealInteractions {
		return components.StageSealed
	}
	return components.StageComposted
}
