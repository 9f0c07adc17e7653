package automation

import "strings"

// Profile maps a vehicle, recognised by a substring of its description,
// onto the identifiers the throttle manager drives. Empty identifiers fall
// back to the standard ones.
type Profile struct {
	ID    string
	Match string
	Name  string

	ThrottleDown      string
	ReverseThrust     string
	ThrottleRatio     string
	IndicatedAirspeed string
	AllWheelsOnGround string
	FlapAngle         string
	GearDeployRatio   string
	HeightAboveGround string
}

// BuiltinProfiles are the vehicles supported without configuration.
var BuiltinProfiles = []Profile{
	{ID: "xcrafts-erj", Match: "x-crafts erj", Name: "X-Crafts ERJ Family"},
}

// WithDefaults fills every empty identifier with the standard one.
func (p Profile) WithDefaults() Profile {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&p.ThrottleDown, CommandThrottleDown)
	fill(&p.ReverseThrust, CommandReverseThrust)
	fill(&p.ThrottleRatio, SensorThrottleRatio)
	fill(&p.IndicatedAirspeed, SensorIndicatedAirspeed)
	fill(&p.AllWheelsOnGround, SensorAllWheelsOnGround)
	fill(&p.FlapAngle, SensorFlapAngle)
	fill(&p.GearDeployRatio, SensorGearDeployRatio)
	fill(&p.HeightAboveGround, SensorHeightAboveGround)
	if p.Name == "" {
		p.Name = p.Match
	}
	return p
}

func (p Profile) Requirements() Requirements {
	return Requirements{
		Sensors: []string{
			p.ThrottleRatio, p.IndicatedAirspeed, p.AllWheelsOnGround,
			p.FlapAngle, p.GearDeployRatio, p.HeightAboveGround,
		},
		Commands: []string{p.ThrottleDown, p.ReverseThrust},
	}
}

// MatchProfile returns the first profile whose match string occurs in the
// description, ignoring case.
func MatchProfile(profiles []Profile, description string) (Profile, bool) {
	desc := strings.ToLower(description)
	for _, p := range profiles {
		if p.Match != "" && strings.Contains(desc, strings.ToLower(p.Match)) {
			return p.WithDefaults(), true
		}
	}
	return Profile{}, false
}
