// Package neuromod implements the neuromodulation controller: three
// process-wide scalar modulators (attention gain, exploration noise,
// reward signal) that bias thresholds and sampling across the engine,
// plus the feedback rules that update them.
package neuromod

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/types"
)

// FeedbackType names a feedback channel into the controller.
type FeedbackType string

const (
	FeedbackSuccess        FeedbackType = "success"
	FeedbackFailure        FeedbackType = "failure"
	FeedbackUncertainty    FeedbackType = "uncertainty"
	FeedbackNovelty        FeedbackType = "novelty"
	FeedbackUserEngagement FeedbackType = "user_engagement"
)

// Modulation is the parameter set handed to a reasoner for one run.
type Modulation struct {
	Confidence      float64            `json:"confidence"`
	Temperature     float64            `json:"temperature"`
	LearningRate    float64            `json:"learning_rate"`
	AttentionFactor float64            `json:"attention_factor"`
	ExploreFactor   float64            `json:"explore_factor"`
	RewardFactor    float64            `json:"reward_factor"`
	Extra           map[string]float64 `json:"extra,omitempty"`
}

// Controller owns the neuromodulator state. All access goes through it;
// readers receive a decayed snapshot. Decay is applied lazily on each
// get/update so tests stay deterministic without background timers.
type Controller struct {
	mu    sync.Mutex
	state types.NeuromodulatorState

	learningRate float64
	decayRate    float64 // per hour, toward targets

	callbacks []func(types.NeuromodulatorState)
	now       func() time.Time
	logger    *zap.Logger
}

// NewController creates a controller at the resting state.
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		state:        types.DefaultNeuromodulatorState(),
		learningRate: 0.01,
		decayRate:    0.001,
		now:          time.Now,
		logger:       logger.With(zap.String("component", "neuromod")),
	}
}

// WithClock overrides the time source, for tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// State returns a decayed snapshot of the current state.
func (c *Controller) State() types.NeuromodulatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyDecay()
	return c.state
}

// UpdateAttentionGain applies an additive, clamped delta (ACh analog).
func (c *Controller) UpdateAttentionGain(delta float64, reason string) {
	c.update(func(s *types.NeuromodulatorState) { s.AttentionGain += delta }, "attention_gain", reason)
}

// UpdateExploreNoise applies an additive, clamped delta (NE analog).
func (c *Controller) UpdateExploreNoise(delta float64, reason string) {
	c.update(func(s *types.NeuromodulatorState) { s.ExploreNoise += delta }, "explore_noise", reason)
}

// UpdateRewardSignal applies an additive, clamped delta (DA analog).
func (c *Controller) UpdateRewardSignal(delta float64, reason string) {
	c.update(func(s *types.NeuromodulatorState) { s.RewardSignal += delta }, "reward_signal", reason)
}

func (c *Controller) update(fn func(*types.NeuromodulatorState), modulator, reason string) {
	c.mu.Lock()
	c.applyDecay()
	fn(&c.state)
	c.state.Clamp()
	c.state.UpdatedAt = c.now()
	snapshot := c.state
	callbacks := append([]func(types.NeuromodulatorState){}, c.callbacks...)
	c.mu.Unlock()

	c.logger.Debug("neuromodulator update",
		zap.String("modulator", modulator),
		zap.String("reason", reason),
		zap.Float64("attention_gain", snapshot.AttentionGain),
		zap.Float64("explore_noise", snapshot.ExploreNoise),
		zap.Float64("reward_signal", snapshot.RewardSignal),
	)
	c.notify(snapshot, callbacks)
}

// ProcessFeedback routes a feedback signal to the matching handler.
// Coefficients follow the feedback rules:
//
//	success:     reward +0.1·v, attention +0.05·v
//	failure:     reward −0.1·v, explore  +0.1·v
//	uncertainty: explore +0.15·v, attention +0.1·v
//	novelty:     explore +0.2·v, reward +0.05·v
//	engagement:  reward +0.08·v, attention +0.06·v
func (c *Controller) ProcessFeedback(kind FeedbackType, value float64) {
	switch kind {
	case FeedbackSuccess:
		c.UpdateRewardSignal(value*0.1, "success feedback")
		c.UpdateAttentionGain(value*0.05, "success feedback")
	case FeedbackFailure:
		c.UpdateRewardSignal(-value*0.1, "failure feedback")
		c.UpdateExploreNoise(value*0.1, "failure feedback")
	case FeedbackUncertainty:
		c.UpdateExploreNoise(value*0.15, "uncertainty feedback")
		c.UpdateAttentionGain(value*0.1, "uncertainty feedback")
	case FeedbackNovelty:
		c.UpdateExploreNoise(value*0.2, "novelty feedback")
		c.UpdateRewardSignal(value*0.05, "novelty feedback")
	case FeedbackUserEngagement:
		c.UpdateRewardSignal(value*0.08, "engagement feedback")
		c.UpdateAttentionGain(value*0.06, "engagement feedback")
	default:
		c.logger.Warn("unknown feedback type", zap.String("type", string(kind)))
	}
}

// ModulateAgentBehavior derives the per-agent parameter set from the
// current state. Higher attention means higher confidence and lower
// temperature (more deterministic sampling).
func (c *Controller) ModulateAgentBehavior(agent types.AgentType, baseConfidence, baseTemperature float64) Modulation {
	c.mu.Lock()
	c.applyDecay()
	s := c.state
	c.mu.Unlock()

	confidence := baseConfidence * s.AttentionGain
	if confidence > 1.0 {
		confidence = 1.0
	}
	divisor := s.AttentionGain
	if divisor < 0.1 {
		divisor = 0.1
	}
	temperature := baseTemperature / divisor
	if temperature > 2.0 {
		temperature = 2.0
	}

	m := Modulation{
		Confidence:      confidence,
		Temperature:     temperature,
		LearningRate:    c.learningRate * (1.0 + s.RewardSignal*0.5),
		AttentionFactor: s.AttentionGain,
		ExploreFactor:   1.0 + s.ExploreNoise,
		RewardFactor:    1.0 + s.RewardSignal*0.5,
		Extra:           map[string]float64{},
	}

	switch agent {
	case types.AgentCreative:
		m.Extra["creativity_boost"] = 1.0 + s.ExploreNoise*0.5
		m.Extra["novelty_threshold"] = 0.5 - s.ExploreNoise*0.3
	case types.AgentLogical:
		m.Extra["precision_boost"] = 1.0 + (s.AttentionGain-1.0)*0.3
		m.Extra["confidence_threshold"] = 0.7 + (s.AttentionGain-1.0)*0.2
	case types.AgentEmotional:
		m.Extra["empathy_boost"] = 1.0 + s.RewardSignal*0.4
		m.Extra["sensitivity"] = 0.5 + s.RewardSignal*0.3
	case types.AgentStrategic:
		m.Extra["planning_horizon"] = 1.0 + s.ExploreNoise*0.3
		m.Extra["risk_tolerance"] = 0.5 + s.RewardSignal*0.2
	case types.AgentVerifier:
		m.Extra["verification_strictness"] = 1.0 + (s.AttentionGain-1.0)*0.4
		m.Extra["evidence_threshold"] = 0.8 + (s.AttentionGain-1.0)*0.1
	}

	return m
}

// ModulateGatingThreshold adjusts a gating threshold by the current
// state: higher attention is more selective, positive reward more
// permissive. Result is clamped to [0.1, 0.9].
func (c *Controller) ModulateGatingThreshold(base float64) float64 {
	c.mu.Lock()
	c.applyDecay()
	s := c.state
	c.mu.Unlock()

	attentionFactor := 1.0 + (s.AttentionGain-1.0)*0.3
	rewardFactor := 1.0 - s.RewardSignal*0.2
	threshold := base * attentionFactor * rewardFactor

	if threshold < 0.1 {
		return 0.1
	}
	if threshold > 0.9 {
		return 0.9
	}
	return threshold
}

// OnUpdate registers a state-change callback. Callback panics are
// isolated and logged.
func (c *Controller) OnUpdate(fn func(types.NeuromodulatorState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

func (c *Controller) notify(state types.NeuromodulatorState, callbacks []func(types.NeuromodulatorState)) {
	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("neuromodulator callback panicked", zap.Any("panic", r))
				}
			}()
			fn(state)
		}()
	}
}

// applyDecay moves each modulator toward its target by
// decayRate · elapsed hours. Caller must hold the lock.
func (c *Controller) applyDecay() {
	now := c.now()
	hours := now.Sub(c.state.UpdatedAt).Hours()
	if hours <= 0 {
		return
	}
	amount := c.decayRate * hours
	c.state.AttentionGain = decayToward(c.state.AttentionGain, types.AttentionGainTarget, amount)
	c.state.ExploreNoise = decayToward(c.state.ExploreNoise, types.ExploreNoiseTarget, amount)
	c.state.RewardSignal = decayToward(c.state.RewardSignal, types.RewardSignalTarget, amount)
	c.state.UpdatedAt = now
}

func decayToward(current, target, amount float64) float64 {
	if current > target {
		if current-amount < target {
			return target
		}
		return current - amount
	}
	if current+amount > target {
		return target
	}
	return current + amount
}
