package core

// PointsConfig drives the points/reputation engine. Mutated only by
// admin action; every change is broadcast to the fleet.
type PointsConfig struct {
	CheckPoints map[string]float64 `json:"check_points"`

	UptimeMultiplier      float64 `json:"uptime_multiplier"`
	VolumeMultiplier      float64 `json:"volume_multiplier"`
	ReliabilityMultiplier float64 `json:"reliability_multiplier"`

	FastResponseThresholdMs int     `json:"fast_response_threshold_ms"`
	FastResponseBonus       float64 `json:"fast_response_bonus"`
	VolumeBonusThreshold    int64   `json:"volume_bonus_threshold"`
	VolumeBonus             float64 `json:"volume_bonus"`
	LongUptimeHours         int     `json:"long_uptime_hours"`
	LongUptimeBonus         float64 `json:"long_uptime_bonus"`

	FailedCheckPenalty float64 `json:"failed_check_penalty"`

	// Points-to-currency factors, consumed by the billing side.
	ConversionRate     float64 `json:"conversion_rate"`
	ConversionCurrency string  `json:"conversion_currency"`

	Tiers []ReputationTier `json:"tiers"`
}

// ReputationTier ranges are inclusive. The tier multiplier applies to
// future accrual only, never retroactively.
type ReputationTier struct {
	Name       string  `json:"name"`
	MinPoints  float64 `json:"min_points"`
	MaxPoints  float64 `json:"max_points"`
	Multiplier float64 `json:"multiplier"`
}

func DefaultPointsConfig() PointsConfig {
	return PointsConfig{
		CheckPoints: map[string]float64{
			string(CheckHTTP): 1.0,
			string(CheckTCP):  1.0,
			string(CheckPing): 0.5,
			string(CheckDNS):  0.8,
		},
		UptimeMultiplier:        1.1,
		VolumeMultiplier:        1.05,
		ReliabilityMultiplier:   1.2,
		FastResponseThresholdMs: 200,
		FastResponseBonus:       0.25,
		VolumeBonusThreshold:    1000,
		VolumeBonus:             0.1,
		LongUptimeHours:         72,
		LongUptimeBonus:         0.5,
		FailedCheckPenalty:      0.5,
		ConversionRate:          0.001,
		ConversionCurrency:      "USD",
		Tiers: []ReputationTier{
			{Name: "hatchling", MinPoints: 0, MaxPoints: 999, Multiplier: 1.0},
			{Name: "fledgling", MinPoints: 1000, MaxPoints: 9999, Multiplier: 1.1},
			{Name: "falcon", MinPoints: 10000, MaxPoints: 49999, Multiplier: 1.25},
			{Name: "eagle", MinPoints: 50000, MaxPoints: -1, Multiplier: 1.5},
		},
	}
}

// TierFor returns the highest tier whose range contains totalPoints.
// MaxPoints < 0 means unbounded.
func (c PointsConfig) TierFor(totalPoints float64) *ReputationTier {
	var match *ReputationTier
	for i := range c.Tiers {
		t := &c.Tiers[i]
		if totalPoints < t.MinPoints {
			continue
		}
		if t.MaxPoints >= 0 && totalPoints > t.MaxPoints {
			continue
		}
		if match == nil || t.MinPoints >= match.MinPoints {
			match = t
		}
	}
	return match
}
