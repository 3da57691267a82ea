package analysis

// Label names a recognised background sound category.
type Label string

const (
	LabelTyping     Label = "typing"
	LabelPhone      Label = "phone"
	LabelDoor       Label = "door"
	LabelMechanical Label = "mechanical"
)

// soundRule pairs a label with its predicate. Rules are independent: a tick
// may match zero, one, or several of them.
type soundRule struct {
	label Label
	match func(fv FeatureVector) bool
}

// soundRules is the ordered rule table evaluated by [ClassifySounds]. The
// table is data, not control flow, so new categories can be added without
// touching the evaluation loop. Band ratios resolve to 0 on an empty-energy
// tick, so no rule can divide by zero.
var soundRules = []soundRule{
	{
		// Typing: bursty high-frequency transients in the mid spectrum.
		label: LabelTyping,
		match: func(fv FeatureVector) bool {
			return fv.ZeroCrossingRate > 0.1 &&
				fv.SpectralCentroid > 1000 && fv.SpectralCentroid < 4000
		},
	},
	{
		// Phone: voice-band (mid) dominance typical of a nearby call.
		label: LabelPhone,
		match: func(fv FeatureVector) bool {
			return bandRatio(fv.BandEnergy.Mid, fv.BandEnergy.Total()) > 0.7
		},
	},
	{
		// Door: low spectral centre of mass with low-band dominance.
		label: LabelDoor,
		match: func(fv FeatureVector) bool {
			return fv.SpectralCentroid < 500 &&
				bandRatio(fv.BandEnergy.Low, fv.BandEnergy.Total()) > 0.6
		},
	},
	{
		// Mechanical: sustained mid-band noise with frequent crossings.
		label: LabelMechanical,
		match: func(fv FeatureVector) bool {
			return fv.ZeroCrossingRate > 0.05 &&
				bandRatio(fv.BandEnergy.Mid, fv.BandEnergy.Total()) > 0.5
		},
	},
}

// ClassifySounds evaluates the rule table against one tick's feature vector
// and returns the labels of every matching rule, in table order. A nil
// result means no suspicious background sound was recognised.
func ClassifySounds(fv FeatureVector) []Label {
	var labels []Label
	for _, r := range soundRules {
		if r.match(fv) {
			labels = append(labels, r.label)
		}
	}
	return labels
}
